package reactor

import (
	"errors"
	"fmt"
)

// Poller waits for read readiness across a dynamic set of handles.
type Poller interface {
	// Add starts watching fd.
	Add(fd int) error
	// Remove stops watching fd. Call it before closing fd.
	Remove(fd int) error
	// Wait blocks, with no timeout, until at least one watched handle is
	// readable or Wake is called, and appends the readable handles to dst.
	Wait(dst []int) ([]int, error)
	// Wake makes a blocked or the next Wait return. Safe from any goroutine.
	Wake() error
	Close() error
}

// Backend names a Poller implementation.
type Backend int

const (
	BackendSelect Backend = iota
	BackendEpoll
)

func (b Backend) String() string {
	switch b {
	case BackendSelect:
		return "select"
	case BackendEpoll:
		return "epoll"
	}
	return fmt.Sprintf("backend(%d)", int(b))
}

// ErrHandleRange is returned by the select poller for handles it cannot
// represent in an fd_set.
var ErrHandleRange = errors.New("handle out of select range")
