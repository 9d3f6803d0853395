package main

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/bizfeed/docq/serv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// These variables are set using -ldflags
	version string
	commit  string
	date    string
)

var (
	log   *zap.SugaredLogger
	conf  *serv.Config
	cpath string
)

func main() {
	Cmd()
}

// Cmd is the entry point for the CLI
func Cmd() {
	log = newLogger(false).Sugar()

	if err := rootCmd().Execute(); err != nil {
		log.Fatalf("%s", err)
	}
}

func rootCmd() *cobra.Command {
	cobra.EnableCommandSorting = false
	c := &cobra.Command{
		Use:           "docq",
		Short:         BuildDetails(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	c.PersistentFlags().StringVar(&cpath,
		"path", "./config", "path to config files")

	c.AddCommand(servCmd())
	c.AddCommand(queryCmd())
	c.AddCommand(explainCmd())
	c.AddCommand(seedCmd())
	c.AddCommand(inspectCmd())
	c.AddCommand(versionCmd())
	return c
}

// setup reads the config file for the current GO_ENV from cpath
func setup(cpath string) error {
	if conf != nil {
		return nil
	}

	cp, err := filepath.Abs(cpath)
	if err != nil {
		return err
	}

	if conf, err = serv.ReadInConfig(path.Join(cp, serv.GetConfigName())); err != nil {
		return err
	}
	return nil
}

// newService reads the config and opens the service it describes
func newService(ctx context.Context) (*serv.Service, error) {
	if err := setup(cpath); err != nil {
		return nil, err
	}
	return serv.NewService(ctx, conf)
}

// newLogger creates a new logger
func newLogger(json bool) *zap.Logger {
	return newLoggerWithOutput(json, os.Stderr)
}

// newLoggerWithOutput creates a new logger with a custom output
func newLoggerWithOutput(json bool, output zapcore.WriteSyncer) *zap.Logger {
	econf := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		NameKey:        "logger",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var core zapcore.Core

	if json {
		core = zapcore.NewCore(zapcore.NewJSONEncoder(econf), output, zap.DebugLevel)
	} else {
		econf.EncodeLevel = zapcore.CapitalColorLevelEncoder
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(econf), output, zap.DebugLevel)
	}
	return zap.New(core)
}
