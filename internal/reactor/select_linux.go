package reactor

import (
	"os"

	"golang.org/x/sys/unix"
)

// FD_SETSIZE on Linux.
const maxSelectFd = 1024

type selectPoller struct {
	fds  map[int]struct{}
	wake [2]int // self-pipe: [read, write]
	junk [64]byte
}

// NewSelectPoller returns a Poller built on select(2). The read set is
// rebuilt from the watched handles on every Wait.
func NewSelectPoller() (Poller, error) {
	p := &selectPoller{fds: make(map[int]struct{})}
	if err := unix.Pipe2(p.wake[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, os.NewSyscallError("pipe2", err)
	}
	if p.wake[0] >= maxSelectFd {
		p.Close()
		return nil, ErrHandleRange
	}
	return p, nil
}

func (p *selectPoller) Add(fd int) error {
	if fd < 0 || fd >= maxSelectFd {
		return ErrHandleRange
	}
	p.fds[fd] = struct{}{}
	return nil
}

func (p *selectPoller) Remove(fd int) error {
	delete(p.fds, fd)
	return nil
}

func (p *selectPoller) Wait(dst []int) ([]int, error) {
	for {
		var rset unix.FdSet
		rset.Zero()
		rset.Set(p.wake[0])
		maxFd := p.wake[0]
		for fd := range p.fds {
			rset.Set(fd)
			maxFd = max(maxFd, fd)
		}

		_, err := unix.Select(maxFd+1, &rset, nil, nil, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return dst, os.NewSyscallError("select", err)
		}

		if rset.IsSet(p.wake[0]) {
			p.drain()
		}
		for fd := range p.fds {
			if rset.IsSet(fd) {
				dst = append(dst, fd)
			}
		}
		return dst, nil
	}
}

func (p *selectPoller) drain() {
	for {
		if n, err := unix.Read(p.wake[0], p.junk[:]); n <= 0 || err != nil {
			return
		}
	}
}

func (p *selectPoller) Wake() error {
	_, err := unix.Write(p.wake[1], []byte{1})
	if err == unix.EAGAIN {
		// The pipe is full, a wakeup is already pending.
		return nil
	}
	if err != nil {
		return os.NewSyscallError("write", err)
	}
	return nil
}

func (p *selectPoller) Close() error {
	err := unix.Close(p.wake[0])
	if err2 := unix.Close(p.wake[1]); err == nil {
		err = err2
	}
	return err
}
