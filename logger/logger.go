// Package logger holds the process loggers shared by the loader, the
// generator and the command line tool.
package logger

import "go.uber.org/zap"

var (
	// Logger is silent until a caller installs one with SetLogger.
	Logger = zap.NewNop()
	Sugar  = Logger.Sugar()
	Cli, _ = zap.NewDevelopment(zap.IncreaseLevel(zap.InfoLevel))
)

func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	Logger = l
	Sugar = l.Sugar()
}

func SetCliLogger(l *zap.Logger) {
	Cli = l
}

// Named returns l, or the package Logger when l is nil, scoped to component.
func Named(l *zap.Logger, component string) *zap.Logger {
	if l == nil {
		l = Logger
	}
	return l.Named(component)
}
