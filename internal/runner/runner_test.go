package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/astavonin/socket-server/internal/logging"
)

func TestCode(t *testing.T) {
	wrapped := fmt.Errorf("ERROR on binding: %w", unix.EADDRINUSE)
	tests := []struct {
		name string
		err  error
		p    ExitPolicy
		want int
	}{
		{"nil", nil, ExitErrno, 0},
		{"canceled", fmt.Errorf("serve: %w", context.Canceled), ExitOne, 0},
		{"plain one", errors.New("boom"), ExitOne, 1},
		{"plain errno", errors.New("boom"), ExitErrno, 1},
		{"errno under one", wrapped, ExitOne, 1},
		{"errno under errno", wrapped, ExitErrno, int(unix.EADDRINUSE)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err, tt.p); got != tt.want {
				t.Fatalf("Code() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRunLogsFatalError(t *testing.T) {
	var out strings.Builder
	log := logging.New(&out)

	code := Run(context.Background(), log, ExitErrno, func(context.Context) error {
		return fmt.Errorf("ERROR on binding: %w", unix.EADDRINUSE)
	})
	if code != int(unix.EADDRINUSE) {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(out.String(), "ERROR on binding") {
		t.Fatalf("fatal error not logged: %q", out.String())
	}
}

func TestRunStopsOnSignal(t *testing.T) {
	log := logging.Discard()
	log.SetLevel(logrus.DebugLevel)

	done := make(chan int, 1)
	go func() {
		done <- Run(context.Background(), log, ExitOne, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	// Give NotifyContext time to install its handler.
	time.Sleep(100 * time.Millisecond)
	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}

	select {
	case code := <-done:
		if code != 0 {
			t.Fatalf("exit code = %d, want 0", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after SIGTERM")
	}
}
