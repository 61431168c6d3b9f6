package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tradedesk/minibroker/api"
	"github.com/tradedesk/minibroker/internal/config"
	"github.com/tradedesk/minibroker/pkg/broker"
	"github.com/tradedesk/minibroker/pkg/tradelog"
)

var (
	cfgFile string
	logger  *logrus.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gateway",
		Short: "Mini broker HTTP gateway",
		Long:  `An HTTP gateway that fronts an Alpaca-style broker API for the desk dashboard: proxied market data, bracket order translation and a trade action log`,
		Run:   runGateway,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runGateway(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	logger = logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logger.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Alpaca.APIKeyID == "" || cfg.Alpaca.APISecret == "" {
		logger.Warn("Broker credentials not set; upstream calls will be rejected")
	}

	client := broker.NewAlpacaClient(
		cfg.Alpaca.TradingBaseURL(),
		cfg.Alpaca.DataBaseURL,
		cfg.Alpaca.APIKeyID,
		cfg.Alpaca.APISecret,
		logger,
	)

	log, err := tradelog.Open(cfg.Gateway.TradeLogPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open trade log")
	}
	defer log.Close()

	server := api.NewServer(client, log, logger, fmt.Sprintf("%d", cfg.Gateway.Port))
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start API server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.WithField("port", cfg.Gateway.Port).Info("Gateway is running. Press Ctrl+C to stop.")

	<-sigChan
	logger.Info("Received shutdown signal")
	logger.Info("Gateway stopped")
}
