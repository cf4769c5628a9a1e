// File: internal/infra/logging/logging.go
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"social-pipeline/internal/config"

	"github.com/rs/zerolog"
)

// New creates a zerolog logger configured from config.
// Supports "trace" | "debug" | "info" | "warn" | "error" levels
// and "json" | "console" formats. Sampling can be enabled to reduce noise in prod.
func New(cfg config.LogConfig, dev bool) *zerolog.Logger {
	return newWithWriter(cfg, dev, os.Stdout)
}

func newWithWriter(cfg config.LogConfig, dev bool, w io.Writer) *zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var base zerolog.Logger
	if strings.ToLower(cfg.Format) == "console" || dev {
		out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		base = zerolog.New(out).With().Timestamp().Logger()
	} else {
		base = zerolog.New(w).With().Timestamp().Logger()
	}

	if cfg.Sampling && !dev {
		// keep first 100, then 1 every 100 thereafter
		sampled := base.Sample(&zerolog.BasicSampler{N: 100})
		return &sampled
	}
	return &base
}

type ctxKey string

const (
	ctxRunID   ctxKey = "run_id"
	ctxRow     ctxKey = "row"
	ctxStage   ctxKey = "stage"
	ctxAccount ctxKey = "account"
)

// With attaches the run-scoped fields found in ctx to base.
func With(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	l := base.With()
	if v, ok := ctx.Value(ctxRunID).(string); ok {
		l = l.Str("run_id", v)
	}
	if v, ok := ctx.Value(ctxRow).(int); ok {
		l = l.Int("row", v)
	}
	if v, ok := ctx.Value(ctxStage).(string); ok {
		l = l.Str("stage", v)
	}
	if v, ok := ctx.Value(ctxAccount).(string); ok {
		l = l.Str("account", v)
	}
	logger := l.Logger()
	return &logger
}

// TraceDuration logs start and end with elapsed duration at TRACE level.
// Usage: defer logging.TraceDuration(logger, "Engine.Run")()
func TraceDuration(logger *zerolog.Logger, name string) func() {
	start := time.Now()
	logger.Trace().Str("method", name).Msg("start")
	return func() {
		logger.Trace().Str("method", name).Dur("duration", time.Since(start)).Msg("finish")
	}
}

// Redact hides secrets and account names when not in dev.
func Redact(s string, dev bool) string {
	if dev {
		return s
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-2:]
}

// Helpers to put IDs into context.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRunID, id)
}
func WithRow(ctx context.Context, row int) context.Context {
	return context.WithValue(ctx, ctxRow, row)
}
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, ctxStage, stage)
}
func WithAccount(ctx context.Context, account string) context.Context {
	return context.WithValue(ctx, ctxAccount, account)
}
