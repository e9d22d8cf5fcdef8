// Command forkserver serves every connection in its own child process while
// the parent keeps accepting.
//
//	forkserver [port]
package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/astavonin/socket-server/internal/acceptor"
	"github.com/astavonin/socket-server/internal/config"
	"github.com/astavonin/socket-server/internal/echo"
	"github.com/astavonin/socket-server/internal/forking"
	"github.com/astavonin/socket-server/internal/logging"
	"github.com/astavonin/socket-server/internal/runner"
)

func main() {
	log := logging.New(os.Stdout).WithField("variant", config.Forking.String())
	if forking.IsChild() {
		os.Exit(child(log.WithField("pid", os.Getpid())))
	}
	os.Exit(run(log))
}

// child serves the single connection inherited from the parent.
func child(log logrus.FieldLogger) int {
	cfg := config.Defaults(config.Forking)
	h := &echo.Handler{BufferSize: cfg.BufferSize, Ack: cfg.Ack, Logger: log}
	return runner.Run(context.Background(), log, cfg.Exit, func(ctx context.Context) error {
		return forking.ServeInherited(ctx, h)
	})
}

func run(log logrus.FieldLogger) int {
	cfg, err := config.Parse(config.Forking, "forkserver", os.Args[1:], log)
	if err != nil {
		log.Error(err)
		return 1
	}
	spawner, err := forking.SelfSpawner()
	if err != nil {
		log.Error(err)
		return 1
	}

	return runner.Run(context.Background(), log, cfg.Exit, func(ctx context.Context) error {
		sock, err := acceptor.Listen(cfg.Port, cfg.Backlog)
		if err != nil {
			return err
		}
		ln, err := sock.Listener()
		if err != nil {
			sock.Close()
			return err
		}
		log.WithField("isolation", cfg.Isolation).Infof("Listening on %s", ln.Addr())

		srv := &forking.Server{
			Handler:       &echo.Handler{BufferSize: cfg.BufferSize, Ack: cfg.Ack, Logger: log},
			Isolation:     cfg.Isolation,
			Spawner:       spawner,
			StatsInterval: cfg.StatsInterval,
			Logger:        log,
		}
		return srv.Serve(ctx, ln)
	})
}
