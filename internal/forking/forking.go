// Package forking serves every accepted connection in its own isolated
// worker: a child process, or a goroutine that shares nothing mutable with
// the others. The accept loop goes straight back to accepting.
package forking

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/astavonin/socket-server/internal/acceptor"
)

// Isolation selects what kind of worker serves a connection.
type Isolation int

const (
	IsolationGoroutine Isolation = iota
	IsolationProcess
)

func (i Isolation) String() string {
	if i == IsolationProcess {
		return "process"
	}
	return "goroutine"
}

// ConnHandler serves one connection to completion and closes it.
type ConnHandler interface {
	Serve(ctx context.Context, conn net.Conn) error
}

// HandlerFunc adapts a function to ConnHandler.
type HandlerFunc func(ctx context.Context, conn net.Conn) error

func (f HandlerFunc) Serve(ctx context.Context, conn net.Conn) error { return f(ctx, conn) }

// Server is the per-connection worker server.
type Server struct {
	Handler   ConnHandler
	Isolation Isolation
	// Spawner starts child processes in IsolationProcess mode.
	Spawner Spawner
	// StatsInterval enables a periodic active connection report.
	StatsInterval time.Duration
	Logger        logrus.FieldLogger

	active atomic.Int32
}

// Active reports the number of connections currently being served.
func (s *Server) Active() int { return int(s.active.Load()) }

// Serve accepts connections from ln until ctx is cancelled or accepting
// fails. It returns once every goroutine worker and reaped child is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { ln.Close() })
	defer stop()

	var workers errgroup.Group
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				if errors.Is(err, net.ErrClosed) {
					return nil
				}
				return &acceptor.OpError{Op: acceptor.OpAccept, Err: err}
			}
			if err := s.dispatch(gctx, &workers, conn); err != nil {
				return err
			}
		}
	})

	if s.StatsInterval > 0 {
		g.Go(func() error {
			s.logStats(gctx)
			return nil
		})
	}

	err := g.Wait()
	workers.Wait()
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Server) dispatch(ctx context.Context, workers *errgroup.Group, conn net.Conn) error {
	log := s.Logger.WithField("peer", conn.RemoteAddr().String())
	log.Info("Accepted connection")

	if s.Isolation == IsolationProcess {
		return s.spawn(ctx, workers, conn, log)
	}

	s.active.Add(1)
	workers.Go(func() error {
		defer s.active.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				conn.Close()
				log.WithField("panic", r).Error("Connection handler crashed")
			}
		}()
		if err := s.Handler.Serve(ctx, conn); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("Connection failed")
		}
		return nil
	})
	return nil
}

func (s *Server) logStats(ctx context.Context) {
	ticker := time.NewTicker(s.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Logger.Infof("Active connections: %d", s.Active())
		}
	}
}
