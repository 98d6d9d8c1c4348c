package confcommon

import (
	"log/slog"

	"github.com/google/uuid"
)

// WithCorrelationID tags every subsequent log line from logger with a fresh
// random "uid" field, mirroring the log-uid flag in flags.go.
func WithCorrelationID(logger *slog.Logger) *slog.Logger {
	id := uuid.Must(uuid.NewRandom())
	return logger.With("uid", id.String())
}
