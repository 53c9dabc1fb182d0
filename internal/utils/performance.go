package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// slowOpThreshold promotes a timed operation to a warning. Batch writes
// and backfill runs should stay well under it.
const slowOpThreshold = 10 * time.Second

// OperationTimer measures a code path for deferred logging:
//
//	defer utils.OperationTimer("poll_persist", log)()
func OperationTimer(operation string, log zerolog.Logger) func() {
	start := time.Now()

	return func() {
		elapsed := time.Since(start)
		evt := log.Debug()
		if elapsed > slowOpThreshold {
			evt = log.Warn()
		}
		evt.Str("operation", operation).
			Dur("duration_ms", elapsed).
			Msg("Operation timed")
	}
}
