package reactor

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/astavonin/socket-server/internal/echo"
	"github.com/astavonin/socket-server/internal/logging"
)

func BenchmarkLoopRoundTrip_Select(b *testing.B) { runLoopRoundTrip(b, BackendSelect, false, -1) }
func BenchmarkLoopRoundTrip_Epoll(b *testing.B) { runLoopRoundTrip(b, BackendEpoll, false, -1) }
func BenchmarkLoopRoundTrip_Pinned(b *testing.B) { runLoopRoundTrip(b, BackendEpoll, true, -1) }
func BenchmarkLoopRoundTrip_PinnedCPU0(b *testing.B) { runLoopRoundTrip(b, BackendEpoll, true, 0) }

// one client, one write and one acknowledgement per iteration
func runLoopRoundTrip(b *testing.B, backend Backend, lock bool, cpu int) {
	sock, addr := listen(b)
	poller, err := NewPoller(backend)
	if err != nil {
		b.Fatal(err)
	}
	defer poller.Close()

	l := &Loop{
		Listener:     sock,
		Poller:       poller,
		BufferSize:   512,
		Reply:        ReplyAck,
		Ack:          echo.Ack,
		LockOSThread: lock,
		CPU:          cpu,
		Logger:       logging.Discard(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	c, err := net.Dial("tcp", addr)
	if err != nil {
		b.Fatal(err)
	}
	defer c.Close()

	msg := []byte("ping")
	ack := make([]byte, len(echo.Ack))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Write(msg); err != nil {
			b.Fatal(err)
		}
		if _, err := io.ReadFull(c, ack); err != nil {
			b.Fatal(err)
		}
	}
}
