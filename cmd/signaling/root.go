package main

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mossy-p/meeting-signaling/config"
)

type rootOptions struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: config.New()}

	cmd := &cobra.Command{
		Use:           "signaling",
		Short:         "Meeting room signaling relay for WebRTC call setup",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.v, opts.configFile)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			setupLogging(cfg)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts.cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "optional YAML config file")
	flags.String("redis-host", "", "Redis host (REDIS_HOST)")
	flags.String("redis-port", "", "Redis port (REDIS_PORT)")
	flags.String("log-level", "", "log level (LOG_LEVEL)")
	_ = opts.v.BindPFlag("redis.host", flags.Lookup("redis-host"))
	_ = opts.v.BindPFlag("redis.port", flags.Lookup("redis-port"))
	_ = opts.v.BindPFlag("log_level", flags.Lookup("log-level"))

	cmd.AddCommand(newServeCmd(opts), newRosterCmd(opts), newEvictCmd(opts))
	return cmd
}

func setupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
