// Package echo implements the per-connection exchange: read a message in
// fixed-size chunks, display it, and answer with a fixed acknowledgement.
package echo

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/sirupsen/logrus"
)

// Ack is the reply sent once per connection. It carries the terminating NUL
// byte so the client receives exactly sizeof("I got your message").
var Ack = []byte("I got your message\x00")

const (
	OpRead  = "ERROR reading from socket"
	OpWrite = "ERROR writing to socket"
)

// IOError is a read or write failure on a client connection.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }

// Result describes one finished exchange.
type Result struct {
	Reads      int
	Bytes      int
	Message    []byte
	PeerClosed bool // the peer shut down before sending anything
}

// Handler serves a single connection. Handlers hold no per-connection state
// and are safe to share between goroutines.
type Handler struct {
	BufferSize int
	Ack        []byte
	Logger     logrus.FieldLogger
}

// Exchange reads chunks of at most BufferSize bytes for as long as each
// read fills the buffer, then writes the acknowledgement once. A zero-byte
// read ends the message; if nothing arrived before it no reply is written.
func (h *Handler) Exchange(conn net.Conn) (Result, error) {
	var res Result
	log := h.Logger.WithField("peer", conn.RemoteAddr().String())
	buf := make([]byte, h.BufferSize)

	for {
		clear(buf)
		n, err := conn.Read(buf)
		if n > 0 {
			res.Reads++
			res.Bytes += n
			res.Message = append(res.Message, buf[:n]...)
			log.Infof("Here is the message: %s", buf[:n])
		}
		if errors.Is(err, io.EOF) {
			if res.Bytes == 0 {
				res.PeerClosed = true
				log.Info("Client disconnected")
				return res, nil
			}
			break
		}
		if err != nil {
			return res, &IOError{Op: OpRead, Err: err}
		}
		if n < len(buf) {
			break
		}
	}

	if _, err := conn.Write(h.Ack); err != nil {
		return res, &IOError{Op: OpWrite, Err: err}
	}
	return res, nil
}

// Serve runs Exchange and closes conn. Cancelling ctx closes conn early,
// which unblocks a pending read.
func (h *Handler) Serve(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	_, err := h.Exchange(conn)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
