package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rain-1/lumbergh/internal/config"
)

// Flags holds the command-line options that are not config keys.
type Flags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}

type runFunc func(ctx context.Context, cfg *config.Config, flags *Flags, root string) error

// flagKeys maps flag names to the config keys they override.
var flagKeys = map[string]string{
	"interval":       "interval",
	"capacity":       "capacity",
	"watch":          "watch",
	"log-level":      "log.level",
	"log-color":      "log.color",
	"metrics-listen": "metrics.listen",
	"history-dsn":    "history.dsn",
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet, flags *Flags) {
	fs.StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	fs.Duration("interval", time.Second, "pause between rescans")
	fs.Int("capacity", 1024, "maximum number of supervised services")
	fs.Bool("watch", false, "rescan early when the service root changes")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.Bool("log-color", false, "colorize log levels")
	fs.String("metrics-listen", "", "serve Prometheus metrics on this address")
	fs.String("history-dsn", "", "record lifecycle history to this sink")
	fs.BoolVar(&flags.Daemonize, "daemonize", false, "run in the background in a new session")
	fs.StringVar(&flags.PidFile, "pidfile", "", "write the supervisor pid to this file")
	fs.StringVar(&flags.LogFile, "logfile", "", "redirect daemon output to this file")

	for name, key := range flagKeys {
		_ = v.BindPFlag(key, fs.Lookup(name))
	}
}

func loadConfig(v *viper.Viper, fs *pflag.FlagSet, flags *Flags) (*config.Config, error) {
	if fs.Changed("metrics-listen") {
		v.Set("metrics.enabled", true)
	}
	cfg, err := config.Load(v, flags.ConfigPath)
	if err != nil {
		return nil, errors.Wrap(err, "error loading config")
	}
	return cfg, nil
}
