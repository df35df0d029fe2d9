/*
Package log provides structured logging for bomtrack built on zerolog.

A single global logger is initialized once at startup via Init and shared by
all packages. Child loggers carry contextual fields so every line can be
attributed to a job and a component.

# Usage

Initialization (once, in main):

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

Component-scoped logging:

	logger := log.WithComponent("push")
	logger.Warn().Err(err).Int("retry", n).Msg("connection lost")

Job-scoped logging:

	logger := log.WithJobID("job-123")
	logger.Info().Msg("tracking started")

# Conventions

  - Transient transport failures log at warn or debug, never error
  - error level is reserved for conditions surfaced to the caller
  - Field names are snake_case (job_id, transport, retry_count)
  - Console output is the default; JSON for machine consumption

# See Also

  - https://github.com/rs/zerolog
*/
package log
