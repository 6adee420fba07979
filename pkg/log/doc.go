// Package log provides the structured logging facade used across logstore.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Internally it is backed by Go's
// standard library slog via a custom handler that preserves the
// formatter/output pipeline, so slog-aware libraries can interop while the
// codebase keeps one consistent output shape.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("store"), log.Str("stream", "s1"))
//	l.Info("store opened", log.Int("partitions", 4))
//
// # Interop
//
// The *f methods (Infof, Errorf, Fatalf) satisfy pebble's Logger interface,
// so a Logger can be handed to the storage layer directly. RedirectStdLog
// routes standard library log output through a Logger.
package log
