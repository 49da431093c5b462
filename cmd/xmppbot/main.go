// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// The xmppbot command connects to an XMPP server, joins the configured rooms,
// and answers a few simple commands.
//
// Options are read from an optional YAML file and then from the environment,
// which takes precedence.
// For more information try running:
//
//     xmppbot -help
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"

	"mellium.im/xmppbot"
	"mellium.im/xmppbot/bot"
	"mellium.im/xmppbot/transport"
)

type fileConfig struct {
	XMPP    xmppbot.Config     `yaml:"xmpp"`
	Logging *zeroconfig.Config `yaml:"logging"`
}

func loadConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("error decoding %s: %w", path, err)
	}
	return cfg, nil
}

func newLogger(cfg *zeroconfig.Config, verbose bool) (zerolog.Logger, error) {
	if cfg != nil {
		logger, err := cfg.Compile()
		if err != nil {
			return zerolog.Nop(), err
		}
		return *logger, nil
	}
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger(), nil
}

func main() {
	var (
		configPath string
		verbose    bool
		logXML     bool
	)
	flags := pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", flags.Name())
		fmt.Fprintf(os.Stderr, "\n  $%s: The JID to log in as\n  $%s: The password\n  $%s: A comma separated list of rooms to join\n\n",
			xmppbot.EnvUsername, xmppbot.EnvPassword, xmppbot.EnvRooms)
		flags.PrintDefaults()
	}
	flags.StringVarP(&configPath, "config", "c", configPath, "a YAML config file to read before the environment")
	flags.BoolVarP(&verbose, "verbose", "v", verbose, "turns on verbose debug logging")
	flags.BoolVar(&logXML, "vv", logXML, "turns on verbose debug and XML logging")

	switch err := flags.Parse(os.Args[1:]); err {
	case pflag.ErrHelp:
		return
	case nil:
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := newLogger(cfg.Logging, verbose || logXML)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error configuring logging: %v\n", err)
		os.Exit(1)
	}
	if logXML {
		logger = logger.Level(zerolog.DebugLevel)
	}

	if err := cfg.XMPP.LoadEnv(os.Getenv); err != nil {
		logger.Fatal().Err(err).Msg("error reading environment")
	}

	opts := []xmppbot.Option{xmppbot.WithLogger(logger)}
	if logXML {
		opts = append(opts, xmppbot.WithXMLLog(transport.LogXML(logger)))
	}
	r := &responder{log: logger.With().Str("component", "robot").Logger()}
	session, err := xmppbot.New(cfg.XMPP, r, bot.NewMemoryBrain(), opts...)
	if err != nil {
		var cfgErr *xmppbot.ConfigError
		if errors.As(err, &cfgErr) {
			logger.Fatal().Str("option", cfgErr.Field).Err(cfgErr.Err).Msg("invalid configuration")
		}
		logger.Fatal().Err(err).Msg("error creating session")
	}
	r.session = session
	r.name = session.Config().Name
	r.alias = session.Config().Alias

	// Handle SIGINT and SIGTERM and gracefully shut down the bot.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = session.Run(ctx)
	switch {
	case err == nil || errors.Is(err, context.Canceled):
		logger.Info().Msg("stopped")
	case errors.Is(err, xmppbot.ErrReconnectExhausted):
		logger.Fatal().Err(err).Msg("giving up")
	default:
		logger.Fatal().Err(err).Msg("session ended")
	}
}
