package reactor

import (
	"encoding/binary"
	"os"

	"golang.org/x/sys/unix"
)

const maxEvents = 128

type epollPoller struct {
	epfd   int
	wakefd int
	events []unix.EpollEvent
}

// NewEpollPoller returns a level-triggered epoll(7) Poller.
func NewEpollPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, os.NewSyscallError("eventfd", err)
	}
	p := &epollPoller{epfd: epfd, wakefd: wakefd, events: make([]unix.EpollEvent, maxEvents)}
	if err := p.Add(wakefd); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *epollPoller) Add(fd int) error {
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	return nil
}

func (p *epollPoller) Remove(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	return nil
}

func (p *epollPoller) Wait(dst []int) ([]int, error) {
	for {
		n, err := unix.EpollWait(p.epfd, p.events, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return dst, os.NewSyscallError("epoll_wait", err)
		}
		for i := 0; i < n; i++ {
			fd := int(p.events[i].Fd)
			if fd == p.wakefd {
				var buf [8]byte
				unix.Read(p.wakefd, buf[:])
				continue
			}
			dst = append(dst, fd)
		}
		return dst, nil
	}
}

func (p *epollPoller) Wake() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(p.wakefd, buf[:]); err != nil && err != unix.EAGAIN {
		return os.NewSyscallError("write", err)
	}
	return nil
}

func (p *epollPoller) Close() error {
	err := unix.Close(p.wakefd)
	if err2 := unix.Close(p.epfd); err == nil {
		err = err2
	}
	return err
}
