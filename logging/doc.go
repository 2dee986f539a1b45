// Package logging provides a tiny abstraction over structured loggers so
// downstream code can depend on a minimal interface (Logger) while allowing
// users to plug any implementation. Adapters for log/slog and go.uber.org/zap
// are included; NoOpLogger is the default everywhere a logger is optional.
package logging
