package forking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ChildEnv is set in the environment of every child process.
const ChildEnv = "SOCKET_SERVER_CHILD"

const (
	// The connection is the first of cmd.ExtraFiles.
	childConnFd = 3
	// Children get this long to finish after SIGTERM before being killed.
	childStopDelay = 5 * time.Second
	opSpawn        = "ERROR on fork"
)

// Spawner describes how to start a child process.
type Spawner struct {
	Path   string
	Args   []string
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

// SelfSpawner re-executes the running binary with its own arguments.
func SelfSpawner() (Spawner, error) {
	exe, err := os.Executable()
	if err != nil {
		return Spawner{}, fmt.Errorf("locate executable: %w", err)
	}
	return Spawner{Path: exe, Args: os.Args[1:], Stdout: os.Stdout, Stderr: os.Stderr}, nil
}

// IsChild reports whether this process was spawned to serve one connection.
func IsChild() bool { return os.Getenv(ChildEnv) != "" }

// ServeInherited runs h on the connection passed down by the parent.
func ServeInherited(ctx context.Context, h ConnHandler) error {
	f := os.NewFile(childConnFd, "conn")
	conn, err := net.FileConn(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("inherited connection: %w", err)
	}
	return h.Serve(ctx, conn)
}

type spawnError struct{ err error }

func (e *spawnError) Error() string { return opSpawn + ": " + e.err.Error() }
func (e *spawnError) Unwrap() error { return e.err }

// spawn hands conn to a new child and drops the parent's copy. The child is
// reaped on workers. Only the connection crosses exec; every other
// descriptor, the listener included, is close-on-exec.
func (s *Server) spawn(ctx context.Context, workers *errgroup.Group, conn net.Conn, log logrus.FieldLogger) error {
	defer conn.Close()

	fc, ok := conn.(interface{ File() (*os.File, error) })
	if !ok {
		return &spawnError{fmt.Errorf("connection %T has no file descriptor", conn)}
	}
	f, err := fc.File()
	if err != nil {
		return &spawnError{err}
	}
	defer f.Close()

	cmd := exec.CommandContext(ctx, s.Spawner.Path, s.Spawner.Args...)
	cmd.Env = append(append(os.Environ(), s.Spawner.Env...), ChildEnv+"=1")
	cmd.ExtraFiles = []*os.File{f}
	cmd.Stdout = s.Spawner.Stdout
	cmd.Stderr = s.Spawner.Stderr
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = childStopDelay

	if err := cmd.Start(); err != nil {
		return &spawnError{err}
	}
	log = log.WithField("pid", cmd.Process.Pid)
	log.Info("Spawned child")

	s.active.Add(1)
	workers.Go(func() error {
		defer s.active.Add(-1)
		err := cmd.Wait()
		var exitErr *exec.ExitError
		switch {
		case err == nil:
			log.Info("Child finished")
		case errors.As(err, &exitErr):
			log.WithField("status", exitErr.ExitCode()).Warn("Child failed")
		default:
			log.WithError(err).Warn("Child lost")
		}
		return nil
	})
	return nil
}
