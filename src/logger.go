// Package src holds the small set of types shared across the whole
// repository — a root-level package imported everywhere else as
// github.com/.../src, mirroring the teacher layout.
package src

// Logger is the structured logging surface handed down from the process
// entrypoint to every component. go.uber.org/zap's *zap.SugaredLogger
// satisfies it without adaptation.
type Logger interface {
	Debugf(template string, args ...any)
	Infof(template string, args ...any)
	Warnf(template string, args ...any)
	Errorf(template string, args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)
	Sync() error
}
