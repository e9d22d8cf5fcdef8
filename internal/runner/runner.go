// Package runner is the top-level harness shared by the server binaries.
// Components report failures as errors; only the runner decides the
// process exit status.
package runner

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

// ExitPolicy selects how a fatal error becomes an exit status.
type ExitPolicy int

const (
	// ExitOne exits with status 1 on any failure.
	ExitOne ExitPolicy = iota
	// ExitErrno exits with the wrapped system error number when there is one.
	ExitErrno
)

// Code maps err to a process exit status under p.
func Code(err error, p ExitPolicy) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	if p == ExitErrno {
		var errno syscall.Errno
		if errors.As(err, &errno) && errno != 0 && int(errno) < 256 {
			return int(errno)
		}
	}
	return 1
}

// Run executes fn with a context cancelled on SIGINT or SIGTERM, logs a
// fatal error if fn returns one and returns the exit status.
func Run(ctx context.Context, log logrus.FieldLogger, p ExitPolicy, fn func(context.Context) error) int {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := fn(sigCtx)
	if sigCtx.Err() != nil && ctx.Err() == nil {
		log.Info("Shutting down...")
	}
	code := Code(err, p)
	if code != 0 {
		log.WithField("exit", code).Error(err)
	}
	return code
}
