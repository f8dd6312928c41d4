// Package log provides structured logging built on zerolog, with a
// process-wide logger and helpers for component- and task-scoped
// child loggers.
package log
