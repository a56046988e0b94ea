package runctx

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const RunIDKey contextKey = "run_id"

// New tags ctx with a fresh run ID and a logger carrying it, so every log
// line of one invocation can be correlated.
func New(ctx context.Context, logger zerolog.Logger) (context.Context, string) {
	runID := uuid.New().String()

	ctx = context.WithValue(ctx, RunIDKey, runID)

	loggerWithID := logger.With().Str("run_id", runID).Logger()
	ctx = loggerWithID.WithContext(ctx)

	return ctx, runID
}

func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(RunIDKey).(string); ok {
		return id
	}
	return ""
}

// Logger returns the run logger stored in ctx, or fallback when ctx has none.
func Logger(ctx context.Context, fallback zerolog.Logger) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &fallback
}
