package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/payverify/internal/control"
	"github.com/vietddude/payverify/internal/core/config"
	"github.com/vietddude/payverify/internal/core/domain"
)

var (
	cfgPath string
	isDebug bool
	cfg     *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "payverify",
	Short: "Verify on-chain token payments",
	Long: `payverify hands a token transfer off to an external wallet, confirms it landed
on chain and credits each transaction to at most one order.`,
	PersistentPreRun: setup,
	SilenceUsage:     true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// setup loads .env and the config file, then initialises logging.
func setup(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	var err error
	cfg, err = config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	switch {
	case isDebug || cfg.Logging.Level == "debug":
		slogLevel = slog.LevelDebug
	case cfg.Logging.Level == "warn":
		slogLevel = slog.LevelWarn
	case cfg.Logging.Level == "error":
		slogLevel = slog.LevelError
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
}

// openDevice builds the device services or exits.
func openDevice() *control.Device {
	d, err := control.NewDevice(cfg)
	if err != nil {
		slog.Error("Failed to initialize device", "error", err)
		os.Exit(1)
	}
	return d
}

// fail prints guidance for err and exits.
func fail(d *control.Device, msg string, err error) {
	slog.Debug(msg, "error", err)
	fmt.Fprintln(os.Stderr, domain.UserMessage(err))
	if d != nil {
		_ = d.Close()
	}
	os.Exit(1)
}

func commandContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
