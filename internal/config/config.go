// Package config turns a server's command line into its runtime settings.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/astavonin/socket-server/internal/echo"
	"github.com/astavonin/socket-server/internal/forking"
	"github.com/astavonin/socket-server/internal/reactor"
	"github.com/astavonin/socket-server/internal/runner"
)

const (
	DefaultPort = 51717
	Backlog     = 5
)

type Variant int

const (
	Single Variant = iota
	Forking
	Selecting
)

func (v Variant) String() string {
	switch v {
	case Single:
		return "single"
	case Forking:
		return "forking"
	case Selecting:
		return "selecting"
	}
	return fmt.Sprintf("variant(%d)", int(v))
}

// Config holds everything a server variant needs to start.
type Config struct {
	Variant    Variant
	Port       int
	Backlog    int
	BufferSize int
	Ack        []byte
	Exit       runner.ExitPolicy

	// Forking only.
	Isolation     forking.Isolation
	StatsInterval time.Duration

	// Selecting only.
	Reply   reactor.Reply
	Backend reactor.Backend
}

// Defaults returns the settings of v with the default port.
func Defaults(v Variant) Config {
	c := Config{
		Variant: v,
		Port:    DefaultPort,
		Backlog: Backlog,
		Ack:     echo.Ack,
		Exit:    runner.ExitErrno,
	}
	switch v {
	case Single:
		c.BufferSize = 256
		c.Exit = runner.ExitOne
	case Forking:
		c.BufferSize = 10
		c.Isolation = forking.IsolationProcess
		c.StatsInterval = 5 * time.Second
	case Selecting:
		c.BufferSize = 512
		c.Reply = reactor.ReplyNone
		c.Backend = reactor.BackendSelect
	}
	return c
}

var (
	ErrTooManyArgs = errors.New("too many arguments")
	ErrPortRange   = errors.New("port out of range")
)

// Parse reads the optional positional port from args (without the program
// name). A missing port falls back to DefaultPort and logs a notice.
func Parse(v Variant, name string, args []string, log logrus.FieldLogger) (Config, error) {
	c := Defaults(v)

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return c, fmt.Errorf("usage: %s [port]: %w", name, err)
		}
		return c, err
	}

	switch fs.NArg() {
	case 0:
		log.Infof("No port provided, using default %d", c.Port)
		return c, nil
	case 1:
	default:
		return c, fmt.Errorf("usage: %s [port]: %w", name, ErrTooManyArgs)
	}

	port, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		return c, fmt.Errorf("invalid port %q: %w", fs.Arg(0), err)
	}
	if port < 0 || port > 65535 {
		return c, fmt.Errorf("invalid port %d: %w", port, ErrPortRange)
	}
	c.Port = port
	return c, nil
}
