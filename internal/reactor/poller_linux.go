package reactor

import "fmt"

// NewPoller creates the poller for b.
func NewPoller(b Backend) (Poller, error) {
	switch b {
	case BackendSelect:
		return NewSelectPoller()
	case BackendEpoll:
		return NewEpollPoller()
	}
	return nil, fmt.Errorf("unknown poller %v", b)
}
