package echo

import (
	"io"
	"net"
	"runtime"
	"testing"

	"github.com/astavonin/socket-server/internal/logging"
)

func BenchmarkExchange_Unpinned(b *testing.B) { runExchange(b, false) }
func BenchmarkExchange_Pinned(b *testing.B) { runExchange(b, true) }

// exchanges over an in-memory pipe so only the handler itself is measured
func runExchange(b *testing.B, pinned bool) {
	if pinned {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	h := &Handler{BufferSize: 256, Ack: Ack, Logger: logging.Discard()}
	msg := []byte("hello")
	ack := make([]byte, len(Ack))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		server, client := net.Pipe()
		go func() {
			defer client.Close()
			client.Write(msg)
			io.ReadFull(client, ack)
		}()
		if _, err := h.Exchange(server); err != nil {
			b.Fatal(err)
		}
		server.Close()
	}
}
