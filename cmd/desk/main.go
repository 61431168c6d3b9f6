package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tradedesk/minibroker/internal/config"
	"github.com/tradedesk/minibroker/internal/ui"
	"github.com/tradedesk/minibroker/pkg/backend"
	"github.com/tradedesk/minibroker/pkg/chart"
	"github.com/tradedesk/minibroker/pkg/dashboard"
)

var (
	cfgFile string
	logger  *logrus.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "desk",
		Short: "Terminal trading dashboard",
		Long:  `A terminal dashboard for a mini broker gateway: asset catalog, price charts, quote hints and bracket order entry`,
		Run:   runDesk,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runDesk(cmd *cobra.Command, args []string) {
	// Load .env before config so env overrides see it
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	logger = newLogger(cfg)

	client := backend.NewRestClient(cfg.Gateway.URL, time.Duration(cfg.Gateway.Timeout)*time.Second, logger)
	diag := backend.NewReporter(cfg.Gateway.URL, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		logger.WithError(err).Warn("Gateway unreachable at startup")
	} else {
		logger.WithField("gateway", cfg.Gateway.URL).Info("Gateway reachable")
	}

	view := ui.NewView()
	ctrl := dashboard.NewController(dashboard.Config{
		GatewayURL:       cfg.Gateway.URL,
		DefaultTimeframe: cfg.Chart.DefaultTimeframe,
		BarLimit:         cfg.Chart.BarLimit,
	}, client, chart.NewTermEngine(), diag, view, logger)

	if err := ui.Run(ctx, ctrl, view, logger); err != nil {
		ctrl.Shutdown()
		logger.WithError(err).Fatal("Dashboard exited with error")
	}

	ctrl.Shutdown()
	logger.Info("Dashboard stopped")
}

// newLogger builds the process logger from config. When a file is
// configured the terminal stays clean and logs rotate on disk; the
// alternate screen makes stderr useless while the program runs anyway.
func newLogger(cfg *config.Config) *logrus.Logger {
	l := logrus.New()

	if cfg.Logging.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if cfg.Logging.File != "" {
		l.SetOutput(&lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAgeDays,
			Compress:   true,
		})
	} else {
		l.SetOutput(io.Discard)
	}
	return l
}
