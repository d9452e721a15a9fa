package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ayusman/humanverify/internal/config"
	"github.com/ayusman/humanverify/internal/inference"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Version is the application version.
const Version = "0.1.0"

var (
	configPath string
	logLevel   string
	logPretty  bool

	// cfg is loaded before any subcommand runs
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "humanverify",
	Short:         "Live face and emotion detection overlay",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
		} else {
			cfg = config.Default()
		}

		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		if cmd.Flags().Changed("pretty") {
			cfg.Log.Pretty = logPretty
		}
		if _, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level)); err != nil {
			return fmt.Errorf("invalid log level %q", cfg.Log.Level)
		}
		setupLogging(cfg.LogLevel(), cfg.Log.Pretty)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "pretty", false, "human readable console logs")
}

func setupLogging(level zerolog.Level, pretty bool) {
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// newTransport builds the inference transport selected in c.
func newTransport(c *config.Config) (inference.Transport, error) {
	switch c.Inference.Transport {
	case config.TransportHTTP:
		return inference.NewHTTPTransport(c.Inference.Endpoint, &http.Client{}), nil
	case config.TransportSocket:
		return inference.NewSocketTransport(c.Inference.SocketPath), nil
	default:
		return nil, fmt.Errorf("unknown inference transport %q", c.Inference.Transport)
	}
}
