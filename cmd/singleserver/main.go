// Command singleserver accepts one connection, reads one message, answers
// it and exits.
//
//	singleserver [port]
package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/astavonin/socket-server/internal/acceptor"
	"github.com/astavonin/socket-server/internal/config"
	"github.com/astavonin/socket-server/internal/echo"
	"github.com/astavonin/socket-server/internal/logging"
	"github.com/astavonin/socket-server/internal/runner"
	"github.com/astavonin/socket-server/internal/single"
)

func main() {
	log := logging.New(os.Stdout).WithField("variant", config.Single.String())
	os.Exit(run(log))
}

func run(log logrus.FieldLogger) int {
	cfg, err := config.Parse(config.Single, "singleserver", os.Args[1:], log)
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
		log.Infof("Listening on %s", ln.Addr())

		h := &echo.Handler{BufferSize: cfg.BufferSize, Ack: cfg.Ack, Logger: log}
		return single.Serve(ctx, ln, h)
	})
}
