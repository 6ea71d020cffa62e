package core

import "time"

// DispatchState captures scheduler spacing state for diagnostics.
type DispatchState struct {
	MinInterval  time.Duration `json:"min_interval"`
	LastDispatch *time.Time    `json:"last_dispatch,omitempty"`
	Dispatched   int64         `json:"dispatched"`
	Queued       int           `json:"queued"`
	Running      bool          `json:"running"`
}
