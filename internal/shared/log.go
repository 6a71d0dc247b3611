package shared

import (
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err with its oops code and context when present.
func LogError(logger *slog.Logger, msg string, err error) {
	if logger == nil || err == nil {
		return
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		attrs := []any{slog.String("error", oopsErr.Error())}
		attrs = append(attrs, slog.Any("code", oopsErr.Code()))
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			attrs = append(attrs, slog.Any("context", ctx))
		}
		logger.Error(msg, attrs...)
		return
	}
	logger.Error(msg, slog.Any("error", err))
}
