// Package main is the Mentis CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/mentis/internal/cli"
	"github.com/hyperjump/mentis/internal/config"
	"github.com/hyperjump/mentis/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/mentis/config.yaml"

// rootFlags are the persistent flags shared by every command.
type rootFlags struct {
	configPath string
	debug      bool
	output     string
}

// app is the per-invocation state built from the root flags.
type app struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	format     cli.OutputFormat
}

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory, so "mentis chat" from a project dir uses that
// project's config. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func (f *rootFlags) setup() (*app, error) {
	format, err := cli.ParseFormat(f.output)
	if err != nil {
		return nil, err
	}
	cfg, resolved, err := loadConfig(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || f.debug
	var logger *zap.Logger
	if debugMode {
		logger, err = utils.NewLogger(true)
	} else {
		logger, err = utils.NewLevelLogger(cfg.LogLevel)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	return &app{cfg: cfg, configPath: resolved, logger: logger, format: format}, nil
}

// components builds the services and returns them with a cleanup func.
func (a *app) components() (*Components, func(), error) {
	c, err := initializeComponents(a.cfg, a.logger)
	if err != nil {
		return nil, nil, err
	}
	return c, func() {
		c.Close()
		_ = a.logger.Sync()
	}, nil
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "mentis",
		Short:         "Diary retrieval assistant",
		Long:          "Mentis encodes a personal diary into vector collections, answers questions over it and evaluates retrieval strategies.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", defaultConfigPath, "config file path")
	pf.BoolVar(&flags.debug, "debug", false, "enable debug logging")
	pf.StringVarP(&flags.output, "output", "o", string(cli.OutputText), "output format: text or json")

	root.AddCommand(
		newEncodeAllCmd(flags),
		newEncodeCmd(flags),
		newAppendCmd(flags),
		newEvaluateCmd(flags),
		newChatCmd(flags),
		newQueryCmd(flags),
		newServeCmd(flags),
		newWatchCmd(flags),
		newStatusCmd(flags),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
