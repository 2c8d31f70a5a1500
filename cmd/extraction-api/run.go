package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	apiserver "github.com/tenderhub/extraction-pipeline/internal/api_server"
	"github.com/tenderhub/extraction-pipeline/internal/config"
	"github.com/tenderhub/extraction-pipeline/internal/queue"
	"github.com/tenderhub/extraction-pipeline/internal/service"
	"github.com/tenderhub/extraction-pipeline/internal/store"
	"github.com/tenderhub/extraction-pipeline/pkg/log"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the extraction api",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}

		logLvl, err := zap.ParseAtomicLevel(cfg.Service.LogLevel)
		if err != nil {
			logLvl = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		}

		logger := log.InitLog(logLvl)
		defer func() { _ = logger.Sync() }()

		undo := zap.ReplaceGlobals(logger)
		defer undo()

		zap.S().Info("Starting API service")
		defer zap.S().Info("API service stopped")

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		q := queue.NewRedisQueue(cfg)
		defer q.Close()

		svc := service.NewBatchService(cfg, s, q)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		listener, err := newListener(cfg.Service.Address)
		if err != nil {
			zap.S().Fatalw("creating listener", "error", err)
		}

		server := apiserver.New(cfg, svc, listener)
		if err := server.Run(ctx); err != nil {
			zap.S().Fatalw("error running server", "error", err)
		}

		return nil
	},
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
