// Package reactor multiplexes the listening socket and every client
// connection on a single goroutine. The loop suspends only inside
// Poller.Wait and runs exactly one unit of work per ready handle.
package reactor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/astavonin/socket-server/internal/acceptor"
)

// OpSelect prefixes a failed readiness wait.
const OpSelect = "ERROR on select"

// Reply selects what the loop sends back after reading from a client.
type Reply int

const (
	// ReplyNone only reads and displays.
	ReplyNone Reply = iota
	// ReplyAck writes the acknowledgement after every read.
	ReplyAck
)

func (r Reply) String() string {
	if r == ReplyAck {
		return "ack"
	}
	return "none"
}

// Listener is the accepting side of the loop. Run switches it to
// non-blocking accepts; Accept then reports acceptor.ErrNoPending when the
// readiness it was woken for has gone away.
type Listener interface {
	Fd() int
	SetNonblock(nonblocking bool) error
	Accept() (fd int, peer string, err error)
}

var _ Listener = (*acceptor.Socket)(nil)

// Loop is the single-goroutine event loop. A Loop runs once.
type Loop struct {
	Listener   Listener
	Poller     Poller
	BufferSize int
	Reply      Reply
	Ack        []byte

	// LockOSThread keeps the loop on one OS thread; with CPU >= 0 that
	// thread is also bound to the CPU.
	LockOSThread bool
	CPU          int

	Logger logrus.FieldLogger

	set *ActiveSet
	buf []byte
}

// Run serves until ctx is cancelled or a fatal error occurs. Accept and
// wait failures are fatal; a failing client is only dropped. On return every
// client handle is closed; the listener stays open for its owner.
func (l *Loop) Run(ctx context.Context) error {
	if l.LockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if l.CPU >= 0 {
			if err := setAffinity(l.CPU); err != nil {
				return fmt.Errorf("pin event loop to cpu %d: %w", l.CPU, err)
			}
		}
	}

	if err := l.Listener.SetNonblock(true); err != nil {
		return fmt.Errorf("listener: %w", err)
	}
	lfd := l.Listener.Fd()
	if err := l.Poller.Add(lfd); err != nil {
		return fmt.Errorf("watch listener: %w", err)
	}
	l.set = NewActiveSet(lfd)
	l.buf = make([]byte, l.BufferSize)
	defer l.closeAll()

	stop := context.AfterFunc(ctx, func() {
		if err := l.Poller.Wake(); err != nil {
			l.Logger.WithError(err).Warn("Cannot wake event loop")
		}
	})
	defer stop()

	var ready []int
	for {
		var err error
		ready, err = l.Poller.Wait(ready[:0])
		if err != nil {
			return &acceptor.OpError{Op: OpSelect, Err: err}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		for _, fd := range ready {
			switch {
			case fd == lfd:
				if err := l.accept(); err != nil {
					return err
				}
			case l.set.Contains(fd):
				l.service(fd)
			}
		}
	}
}

func (l *Loop) accept() error {
	fd, peer, err := l.Listener.Accept()
	if errors.Is(err, acceptor.ErrNoPending) {
		return nil
	}
	if err != nil {
		return err
	}
	log := l.Logger.WithFields(logrus.Fields{"fd": fd, "peer": peer})

	if err := l.Poller.Add(fd); err != nil {
		log.WithError(err).Error("Cannot watch connection, closing it")
		unix.Close(fd)
		return nil
	}
	l.set.Add(fd, Peer{Addr: peer, Since: time.Now()})
	log.WithField("clients", l.set.Len()-1).Info("Accepted connection")
	return nil
}

// service performs a single read on a ready client.
func (l *Loop) service(fd int) {
	peer, _ := l.set.Peer(fd)
	log := l.Logger.WithFields(logrus.Fields{"fd": fd, "peer": peer.Addr})

	clear(l.buf)
	n, err := unix.Read(fd, l.buf)
	switch {
	case err == unix.EINTR || err == unix.EAGAIN:
		return
	case err != nil:
		log.WithError(os.NewSyscallError("read", err)).Warn("Read failed, dropping connection")
		l.drop(fd)
		return
	case n == 0:
		log.Info("Client disconnected")
		l.drop(fd)
		return
	}

	log.Infof("Here is the message: %s", l.buf[:n])

	if l.Reply == ReplyAck {
		if _, err := unix.Write(fd, l.Ack); err != nil {
			log.WithError(os.NewSyscallError("write", err)).Warn("Write failed, dropping connection")
			l.drop(fd)
		}
	}
}

func (l *Loop) drop(fd int) {
	l.set.Remove(fd)
	if err := l.Poller.Remove(fd); err != nil {
		l.Logger.WithField("fd", fd).WithError(err).Warn("Cannot unwatch connection")
	}
	unix.Close(fd)
}

func (l *Loop) closeAll() {
	if l.set == nil {
		return
	}
	for _, fd := range l.set.Clients() {
		l.drop(fd)
	}
	if err := l.Poller.Remove(l.set.Listener()); err != nil {
		l.Logger.WithError(err).Warn("Cannot unwatch listener")
	}
}
