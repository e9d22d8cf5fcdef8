// Package single serves exactly one connection and returns.
package single

import (
	"context"
	"errors"
	"net"

	"github.com/astavonin/socket-server/internal/acceptor"
	"github.com/astavonin/socket-server/internal/echo"
)

// Serve accepts one connection from ln, runs the echo exchange on it and
// closes ln. Cancelling ctx before a client arrives returns ctx.Err().
func Serve(ctx context.Context, ln net.Listener, h *echo.Handler) error {
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
			return ctx.Err()
		}
		return &acceptor.OpError{Op: acceptor.OpAccept, Err: err}
	}
	h.Logger.WithField("peer", conn.RemoteAddr().String()).Info("Accepted connection")
	return h.Serve(ctx, conn)
}
