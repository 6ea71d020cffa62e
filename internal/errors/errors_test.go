package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcityai/pubgate/internal/core/engine"
)

func TestHTTPStatusFromCode(t *testing.T) {
	cases := map[string]int{
		"INVALID_INPUT":          http.StatusBadRequest,
		"NOT_FOUND":              http.StatusNotFound,
		"METHOD_NOT_ALLOWED":     http.StatusMethodNotAllowed,
		"RATE_LIMITED":           http.StatusTooManyRequests,
		"CONFIG_INVALID":         http.StatusInternalServerError,
		"TIMEOUT":                http.StatusGatewayTimeout,
		"EXTERNAL_SERVICE_ERROR": http.StatusBadGateway,
		"SERVICE_UNAVAILABLE":    http.StatusServiceUnavailable,
		"SOMETHING_ELSE":         http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatusFromCode(code), code)
	}
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromEnvelope(nil))
}

func TestWrapUpstreamStatus(t *testing.T) {
	reqErr := &engine.RequestError{
		Kind:       engine.KindStatus,
		URL:        "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi?api_key=secret&term=x",
		StatusCode: http.StatusTooManyRequests,
		Attempts:   5,
	}
	env := WrapUpstream(context.Background(), fmt.Errorf("search: %w", reqErr))
	require.NotNil(t, env)
	assert.Equal(t, "EXTERNAL_SERVICE_ERROR", env.Code)
	assert.Equal(t, "pubmed rate limit exceeded", env.Message)
	assert.Equal(t, http.StatusBadGateway, HTTPStatusFromEnvelope(env))
	assert.Equal(t, http.StatusTooManyRequests, env.Context["upstream_status"])
	assert.Equal(t, 5, env.Context["attempts"])
	assert.NotContains(t, env.Context["upstream_url"], "secret")
	assert.NotEmpty(t, env.CorrelationID)
}

func TestWrapUpstreamTimeout(t *testing.T) {
	reqErr := &engine.RequestError{Kind: engine.KindNetwork, Attempts: 5, Err: context.DeadlineExceeded}
	env := WrapUpstream(context.Background(), reqErr)
	require.NotNil(t, env)
	assert.Equal(t, "TIMEOUT", env.Code)
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatusFromEnvelope(env))

	assert.Nil(t, WrapUpstream(context.Background(), nil))
}

func TestWrapHelpersCarryCodeAndCause(t *testing.T) {
	cause := stderrors.New("disk full")
	for code, env := range map[string]*errors.ErrorEnvelope{
		"INVALID_INPUT":          WrapInvalidInput(context.Background(), cause, "bad"),
		"INTERNAL_ERROR":         WrapInternal(context.Background(), cause, "bad"),
		"EXTERNAL_SERVICE_ERROR": WrapExternalService(context.Background(), cause, "bad"),
		"CONFIG_INVALID":         WrapConfigInvalid(context.Background(), cause, "bad"),
	} {
		require.NotNil(t, env, code)
		assert.Equal(t, code, env.Code)
		assert.Equal(t, "bad", env.Message)
		assert.Equal(t, "disk full", env.Context["wrapped_error"], code)
		assert.NotEmpty(t, env.CorrelationID, code)
	}
}

func TestEnsureEnvelope(t *testing.T) {
	env := NewNotFoundError("missing")
	assert.Same(t, env, EnsureEnvelope(env))

	wrapped := EnsureEnvelope(stderrors.New("boom"))
	assert.Equal(t, "INTERNAL_ERROR", wrapped.Code)
	assert.Equal(t, "boom", wrapped.Context["wrapped_error"])

	assert.Equal(t, "INTERNAL_ERROR", EnsureEnvelope(nil).Code)
}

func TestRespondWithError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?term=", nil)
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, NewInvalidInputError("term is required"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_INPUT", body.Error.Code)
	assert.Equal(t, "term is required", body.Error.Message)
	assert.NotEmpty(t, body.Error.RequestID)
}
