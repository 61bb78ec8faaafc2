// Package log provides pgjobq's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Internally it is backed by Go's
// standard library slog via a custom handler that preserves the
// formatter/outputs pipeline, so output stays consistent across the
// codebase while remaining interoperable with the slog ecosystem.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("reaper"), log.Str("queue", "orders"))
//	l.Info("sweep complete", log.Int("reclaimed", 12))
//
// # Interop
//
// To integrate with libraries expecting the standard library's *log.Logger,
// use RedirectStdLog. Most code should stay against this facade and pass
// Logger instances explicitly.
package log
