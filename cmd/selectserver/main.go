// Command selectserver multiplexes all clients on one goroutine with a
// readiness-selection loop.
//
//	selectserver [port]
package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/astavonin/socket-server/internal/acceptor"
	"github.com/astavonin/socket-server/internal/config"
	"github.com/astavonin/socket-server/internal/logging"
	"github.com/astavonin/socket-server/internal/reactor"
	"github.com/astavonin/socket-server/internal/runner"
)

func main() {
	log := logging.New(os.Stdout).WithField("variant", config.Selecting.String())
	os.Exit(run(log))
}

func run(log logrus.FieldLogger) int {
	cfg, err := config.Parse(config.Selecting, "selectserver", os.Args[1:], log)
	if err != nil {
		log.Error(err)
		return 1
	}

	return runner.Run(context.Background(), log, cfg.Exit, func(ctx context.Context) error {
		sock, err := acceptor.Listen(cfg.Port, cfg.Backlog)
		if err != nil {
			return err
		}
		defer sock.Close()

		poller, err := reactor.NewPoller(cfg.Backend)
		if err != nil {
			return err
		}
		defer poller.Close()

		port, _ := sock.Port()
		log.WithFields(logrus.Fields{"poller": cfg.Backend, "reply": cfg.Reply}).
			Infof("Listening on port %d", port)

		loop := &reactor.Loop{
			Listener:   sock,
			Poller:     poller,
			BufferSize: cfg.BufferSize,
			Reply:      cfg.Reply,
			Ack:        cfg.Ack,
			CPU:        -1,
			Logger:     log,
		}
		return loop.Run(ctx)
	})
}
