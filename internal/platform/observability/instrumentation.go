package observability

import (
	"context"
	"log/slog"
	"time"

	"eduverse-client-go/internal/platform/errors"
)

// Attr labels a span or metric.
type Attr = slog.Attr

// Label is a free-form string label.
func Label(key, value string) Attr { return slog.String(key, value) }

// RecordID labels work on one mint record.
func RecordID(id string) Attr { return slog.String("record_id", id) }

// TxHash labels work on one ledger transaction.
func TxHash(hash string) Attr { return slog.String("tx_hash", hash) }

// Account labels work signed by one ledger account.
func Account(address string) Attr { return slog.String("account", address) }

// Credential labels work done with a session credential. Pass the
// fingerprint, never the credential.
func Credential(fingerprint string) Attr { return slog.String("credential", fingerprint) }

type attrsKey struct{}

// WithAttrs returns a context whose spans and metrics all carry attrs.
func WithAttrs(ctx context.Context, attrs ...Attr) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	inherited := attrsFrom(ctx)
	merged := make([]Attr, 0, len(inherited)+len(attrs))
	merged = append(merged, inherited...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, attrsKey{}, merged)
}

func attrsFrom(ctx context.Context) []Attr {
	attrs, _ := ctx.Value(attrsKey{}).([]Attr)
	return attrs
}

// Enabled reports whether observability has been toggled on.
func Enabled() bool {
	_, cfg := currentLogger()
	return cfg.Enabled
}

// StartSpan logs the start and end of component.operation. attrs, and any
// attached to ctx, label both lines and are inherited by spans started from
// the returned context. A failed span also carries the innermost error kind.
func StartSpan(ctx context.Context, component, operation string, attrs ...Attr) (context.Context, func(error)) {
	logger, cfg := currentLogger()
	if logger == nil || !cfg.Enabled {
		return ctx, func(error) {}
	}

	ctx = WithAttrs(ctx, attrs...)
	labels := append([]Attr{slog.String("span", component+"."+operation)}, attrsFrom(ctx)...)
	start := time.Now()
	logger.LogAttrs(ctx, slog.LevelDebug, "[obs] span start", labels...)

	return ctx, func(err error) {
		level := slog.LevelDebug
		end := append(labels, slog.Duration("duration", time.Since(start)))
		if err != nil {
			level = slog.LevelWarn
			end = append(end,
				slog.String("error_kind", string(errors.RootKind(err))),
				slog.Any("error", err),
			)
		}
		logger.LogAttrs(ctx, level, "[obs] span end", end...)
	}
}

// RecordMetric logs one datapoint labelled with attrs and those attached to ctx.
func RecordMetric(ctx context.Context, name string, value float64, attrs ...Attr) {
	logger, cfg := currentLogger()
	if logger == nil || !cfg.Enabled {
		return
	}

	labels := []Attr{slog.String("metric", name), slog.Float64("value", value)}
	labels = append(labels, attrsFrom(ctx)...)
	labels = append(labels, attrs...)
	logger.LogAttrs(ctx, slog.LevelDebug, "[obs] metric", labels...)
}
