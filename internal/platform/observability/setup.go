package observability

import (
	"context"
	"log/slog"
	"sync"
)

// Config captures observability toggles.
type Config struct {
	Enabled bool
}

// ShutdownFunc allows callers to tear down any observability exporters.
type ShutdownFunc func(context.Context) error

var (
	loggerMu             sync.RWMutex
	instrumentationLog   *slog.Logger
	instrumentationState Config
)

func currentLogger() (*slog.Logger, Config) {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return instrumentationLog, instrumentationState
}

// Setup installs the logger spans and metrics are written to.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (ShutdownFunc, error) {
	loggerMu.Lock()
	instrumentationLog = logger
	instrumentationState = cfg
	loggerMu.Unlock()

	if logger != nil {
		if cfg.Enabled {
			logger.InfoContext(ctx, "[obs] span logging enabled")
		} else {
			logger.DebugContext(ctx, "[obs] disabled")
		}
	}
	return func(context.Context) error {
		loggerMu.Lock()
		instrumentationLog = nil
		instrumentationState = Config{}
		loggerMu.Unlock()
		return nil
	}, nil
}
