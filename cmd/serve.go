package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/spigell/outreach-matcher/internal/server"
	"github.com/spigell/outreach-matcher/internal/session"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat endpoint over HTTP",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default is server.addr from config)")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func serve() {
	logger := mustLogger()
	defer logger.Sync()

	config, err := getConfig(viper.GetViper())
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the outreach-matcher server", zap.String("version", version))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := build(ctx, config, logger)
	if err != nil {
		logger.Fatal("wiring components", zap.Error(err))
	}
	defer func() {
		if err := c.store.Close(); err != nil {
			logger.Warn("closing session store", zap.Error(err))
		}
	}()

	session.StartReaper(ctx, c.store, config.Session.IdleTTL, config.Session.ReapInterval, logger.Named("reaper"))

	router := server.NewRouter(c.machine, c.engine, &server.Config{
		Addr:           config.Server.Addr,
		AllowedOrigins: config.Server.AllowedOrigins,
	}, logger.Named("http"))

	if err := server.Serve(ctx, config.Server.Addr, router, logger); err != nil {
		logger.Error("server failed", zap.Error(err))
	}
}
