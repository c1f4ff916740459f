package logger

// Logger is the structured logging surface used across the facilitator.
// Fields are plain maps so call sites stay free of any backend types.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)

	// Named returns a logger scoped to a subsystem name.
	Named(name string) Logger
}

// NoopLogger discards everything. Useful as a test default.
type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]any) {}
func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Warn(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}

func (n NoopLogger) Named(string) Logger { return n }
