package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Flarenzy/smart-ipam/internal/app"
	"github.com/Flarenzy/smart-ipam/internal/logging"
)

//	@title			Smart IPAM API
//	@version		1.0
//	@description	Address allocation, network discovery and conflict detection.

//	@contact.name	API Support
//	@contact.url	https://github.com/Flarenzy/smart-ipam/issues

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:4040
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	if err := app.Run(ctx, cfg); err != nil {
		logger.Error("server exited", "err", err.Error())
		stop()
		_ = closer.Close()
		os.Exit(1)
	}
}
