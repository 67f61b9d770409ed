package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/blecentral/internal/config"
)

// loadConfig resolves the effective configuration and logger for a command.
// --log-level overrides the config file value; with neither, commands run
// near-silent so output stays clean.
func loadConfig(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	if levelStr, _ := cmd.Flags().GetString("log-level"); levelStr != "" {
		cfg.LogLevel = levelStr
	} else if path == "" {
		cfg.LogLevel = "panic"
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
