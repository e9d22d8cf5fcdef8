// Package acceptor creates the listening socket shared by all server
// variants and accepts connections from it.
package acceptor

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// Diagnostic prefixes reported for setup failures.
const (
	OpSocket = "ERROR creating socket"
	OpBind   = "ERROR on binding"
	OpListen = "Error turning on listening for connection requests"
	OpAccept = "ERROR accepting connection request"
)

// OpError is a fatal socket setup or accept failure.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *OpError) Unwrap() error { return e.Err }

// Socket is an IPv4 TCP listening socket.
type Socket struct {
	fd int
}

// Listen binds INADDR_ANY:port and starts listening with the given backlog.
// Port 0 picks an ephemeral port.
func Listen(port, backlog int) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, &OpError{Op: OpSocket, Err: os.NewSyscallError("socket", err)}
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, &OpError{Op: OpSocket, Err: os.NewSyscallError("setsockopt", err)}
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port}); err != nil {
		unix.Close(fd)
		return nil, &OpError{Op: OpBind, Err: os.NewSyscallError("bind", err)}
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, &OpError{Op: OpListen, Err: os.NewSyscallError("listen", err)}
	}
	return &Socket{fd: fd}, nil
}

// Fd returns the listening handle, or -1 once the socket was handed off or closed.
func (s *Socket) Fd() int { return s.fd }

// Port reports the bound local port.
func (s *Socket) Port() (int, error) {
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return 0, os.NewSyscallError("getsockname", err)
	}
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		return in4.Port, nil
	}
	return 0, fmt.Errorf("unexpected socket address %T", sa)
}

// ErrNoPending is returned by Accept on a non-blocking socket when the
// queue is empty or the pending connection was aborted before it was taken.
var ErrNoPending = errors.New("no pending connection")

// SetNonblock switches the listening handle between blocking and
// non-blocking accepts. Accepted handles are always blocking.
func (s *Socket) SetNonblock(nonblocking bool) error {
	if err := unix.SetNonblock(s.fd, nonblocking); err != nil {
		return os.NewSyscallError("fcntl", err)
	}
	return nil
}

// Accept returns the next connection's handle and the peer address. The new
// handle is close-on-exec. An aborted connection, or an empty queue on a
// non-blocking socket, yields ErrNoPending.
func (s *Socket) Accept() (int, string, error) {
	for {
		nfd, sa, err := unix.Accept4(s.fd, unix.SOCK_CLOEXEC)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.ECONNABORTED {
			return -1, "", ErrNoPending
		}
		if err != nil {
			return -1, "", &OpError{Op: OpAccept, Err: os.NewSyscallError("accept", err)}
		}
		return nfd, PeerString(sa), nil
	}
}

// Listener hands the socket over to the Go runtime network poller. The
// Socket must not be used afterwards; close the returned listener instead.
func (s *Socket) Listener() (net.Listener, error) {
	f := os.NewFile(uintptr(s.fd), "listener:"+strconv.Itoa(s.fd))
	s.fd = -1
	defer f.Close()

	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("file listener: %w", err)
	}
	return ln, nil
}

// Close releases the listening handle.
func (s *Socket) Close() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}

// PeerString formats a socket address as host:port.
func PeerString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	}
	return "unknown"
}
