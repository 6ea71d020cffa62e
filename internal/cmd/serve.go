package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/medcityai/pubgate/internal/config"
	"github.com/medcityai/pubgate/internal/core/trending"
	errwrap "github.com/medcityai/pubgate/internal/errors"
	"github.com/medcityai/pubgate/internal/metrics"
	"github.com/medcityai/pubgate/internal/observability"
	"github.com/medcityai/pubgate/internal/server"
	"github.com/medcityai/pubgate/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct {
	enabled bool
}

func (t telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if !t.enabled {
		return nil
	}
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	Long: `Start the HTTP gateway with graceful shutdown support.

The /api/v1 endpoints proxy PubMed through the rate limited, cached gateway.
When featured.enabled is set the weekly report is rebuilt on
featured.schedule.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload configuration (server settings need a restart)`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host (default from config)")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "server port (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	overrides := map[string]any{}
	if cmd.Flags().Changed("host") {
		overrides["server.host"] = serverHost
	}
	if cmd.Flags().Changed("port") {
		overrides["server.port"] = serverPort
	}
	cfg, err := loadConfig(cmd, overrides)
	if err != nil {
		return err
	}

	observability.InitServerLogger(config.AppName, cfg.Logging, observability.DefaultMetricsNamespace)
	logger := observability.ServerLogger

	if err := observability.InitMetrics(cfg.Metrics, observability.DefaultMetricsNamespace); err != nil {
		logger.Error("Failed to initialize metrics", zap.Error(err))
		return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
	}

	svc, err := openServices(cmd.Context(), cfg)
	if err != nil {
		return errwrap.WrapInternal(cmd.Context(), err, "gateway initialization failed")
	}

	logger.Info("Initializing server",
		zap.String("service", config.AppName),
		zap.String("version", versionInfo.Version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("cache_driver", svc.backend.driver),
		zap.Bool("metrics", observability.MetricsEnabled()),
		zap.Int("metrics_port", observability.GetMetricsPort()))

	handlers.InitHealthManager(versionInfo.Version)
	hm := handlers.GetHealthManager()
	hm.RegisterChecker("cache", svc.backend)
	hm.RegisterChecker("telemetry", telemetryHealthChecker{enabled: cfg.Metrics.Enabled})

	srv := server.New(cfg.Server, server.Deps{
		API: &handlers.API{
			PubMed:       svc.client,
			Gateway:      svc.gateway,
			Trending:     newTrendingService(cfg),
			FeaturedPath: cfg.Featured.OutputPath,
		},
		RateLimit:  cfg.RateLimit,
		AdminToken: os.Getenv(config.EnvPrefix + "ADMIN_TOKEN"),
	})

	runCtx, stopBackground := context.WithCancel(context.Background())
	srv.StartJanitor(runCtx)

	scheduler, err := startFeaturedSchedule(runCtx, cfg, svc)
	if err != nil {
		stopBackground()
		_ = svc.Close()
		return errwrap.WrapConfigInvalid(cmd.Context(), err, "invalid featured schedule")
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}

	// Shutdown handlers run LIFO.
	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Flushing logger...")
		if err := logger.Sync(); err != nil {
			// Sync errors are often benign (stdout/stderr already closed)
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		if err := svc.Close(); err != nil {
			logger.Warn("Cache close returned error", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		stopBackground()
		if scheduler != nil {
			<-scheduler.Stop().Done()
		}

		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}

		logger.Info("HTTP server stopped gracefully")
		return nil
	})

	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: attempting config reload")
		reloaded, err := config.Load(ctx, overrides)
		if err != nil {
			logger.Error("Failed to reload config", zap.Error(err))
			return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
		}
		logger.Info("Configuration reloaded; restart to apply server and gateway changes",
			zap.String("file", config.ConfigFileUsed()),
			zap.String("log_level", reloaded.Logging.Level))
		return nil
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	metrics.SetServerStartTime(time.Now().Unix())

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go func() {
		if err := signals.Listen(cmd.Context()); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	if err := <-errChan; err != nil {
		stopBackground()
		return errwrap.WrapInternal(cmd.Context(), err, "server error")
	}

	return nil
}

// startFeaturedSchedule registers the weekly featured job. It returns a nil
// scheduler when the job is disabled.
func startFeaturedSchedule(ctx context.Context, cfg *config.Config, svc *services) (*cron.Cron, error) {
	if !cfg.Featured.Enabled {
		return nil, nil
	}

	logger := observability.Logger()
	fs := afero.NewOsFs()
	c := cron.New()
	_, err := c.AddFunc(cfg.Featured.Schedule, func() {
		start := time.Now()
		_, err := buildFeatured(ctx, cfg, svc, fs, start)
		switch {
		case err == nil:
			metrics.RecordJobRun("featured", true, time.Since(start))
		case errors.Is(err, trending.ErrNoLikes):
			metrics.RecordJobRun("featured", true, time.Since(start))
			if logger != nil {
				logger.Info("No liked articles in the prior week; featured report unchanged")
			}
		default:
			metrics.RecordJobRun("featured", false, time.Since(start))
			if logger != nil {
				logger.Error("Featured job failed", zap.Error(err))
			}
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()

	if logger != nil {
		logger.Info("Featured report scheduled",
			zap.String("schedule", cfg.Featured.Schedule),
			zap.String("path", cfg.Featured.OutputPath))
	}
	return c, nil
}
