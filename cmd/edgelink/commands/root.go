package commands

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"edgelink/internal/config"
	"edgelink/internal/logging"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:          "edgelink",
	Short:        "Share one keyboard and mouse with a second computer over a direct link",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: per-user config directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error (overrides log.level)")

	rootCmd.AddCommand(
		sendCmd,
		receiveCmd,
		autostartCmd,
		versionCmd,
	)
}

// Execute executes root CLI command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads the configuration and applies the log level.
func loadConfig() (*config.Manager, config.Config, error) {
	var (
		mgr *config.Manager
		err error
	)
	if configPath != "" {
		mgr = config.NewManagerAt(configPath)
	} else if mgr, err = config.NewManager(); err != nil {
		return nil, config.Config{}, err
	}
	if err := mgr.Load(); err != nil {
		return nil, config.Config{}, err
	}
	cfg := mgr.Get()

	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	if err := logging.SetLevel(level); err != nil {
		return nil, config.Config{}, err
	}
	logging.MustGetLogger("config").Debugf("Using %s", mgr.Path())
	return mgr, cfg, nil
}

// waitOsSignals cancels the run on SIGINT or SIGTERM. A second signal, or a
// shutdown that takes too long, terminates the process.
func waitOsSignals(ctx context.Context, cancel context.CancelFunc, logger logrus.FieldLogger) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-ch:
		logger.Infof("Received signal %s: shutting down", s)
		cancel()
	case <-ctx.Done():
		signal.Stop(ch)
		return
	}
	go func() {
		select {
		case <-time.After(shutdownTimeout):
			logger.Fatal("Timeout reached: terminating")
		case s := <-ch:
			logger.Fatalf("Received signal %s: terminating", s)
		}
	}()
}
