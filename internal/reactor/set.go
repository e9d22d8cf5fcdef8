package reactor

import (
	"time"

	"golang.org/x/exp/slices"
)

// Peer is what the loop remembers about a connected client.
type Peer struct {
	Addr  string
	Since time.Time
}

// ActiveSet tracks the handles the loop waits on. The listening handle is
// always a member; every other member is a live client connection.
// Only the loop goroutine touches it, so it carries no lock.
type ActiveSet struct {
	listener int
	conns    map[int]Peer
}

func NewActiveSet(listener int) *ActiveSet {
	return &ActiveSet{listener: listener, conns: make(map[int]Peer)}
}

func (s *ActiveSet) Listener() int { return s.listener }

// Add records a client handle. Adding the listening handle is a no-op.
func (s *ActiveSet) Add(fd int, p Peer) {
	if fd == s.listener {
		return
	}
	s.conns[fd] = p
}

// Remove forgets a client handle. It reports false for the listening
// handle, which cannot be removed, and for unknown handles.
func (s *ActiveSet) Remove(fd int) bool {
	if _, ok := s.conns[fd]; !ok {
		return false
	}
	delete(s.conns, fd)
	return true
}

func (s *ActiveSet) Contains(fd int) bool {
	if fd == s.listener {
		return true
	}
	_, ok := s.conns[fd]
	return ok
}

// Len counts the members, listening handle included.
func (s *ActiveSet) Len() int { return len(s.conns) + 1 }

// Clients returns the connected client handles in ascending order.
func (s *ActiveSet) Clients() []int {
	fds := make([]int, 0, len(s.conns))
	for fd := range s.conns {
		fds = append(fds, fd)
	}
	slices.Sort(fds)
	return fds
}

// Handles returns every member in ascending order.
func (s *ActiveSet) Handles() []int {
	fds := append(s.Clients(), s.listener)
	slices.Sort(fds)
	return fds
}

func (s *ActiveSet) Peer(fd int) (Peer, bool) {
	p, ok := s.conns[fd]
	return p, ok
}
