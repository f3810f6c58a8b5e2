package cmd

import (
	"context"

	"github.com/castwave/client/pkg/engine"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// startApp loads configuration and starts the client. The caller must Stop
// the returned service.
func startApp(ctx context.Context, cmd *cobra.Command) (*engine.Service, *engine.Config, error) {
	// Silence usage on error
	cmd.SilenceUsage = true

	config, err := LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	// The flag wins over the file
	if !cmd.Flags().Changed("log-level") {
		if level, err := logrus.ParseLevel(config.Logging); err == nil {
			logger.SetLevel(level)
		}
	}

	logger.WithField("api", config.Remote.BaseURL).Debug("Configuration loaded")

	app, err := engine.NewService(logger, config)
	if err != nil {
		return nil, nil, err
	}

	if err := app.Start(ctx); err != nil {
		_ = app.Stop()
		return nil, nil, err
	}

	return app, config, nil
}

// stopApp stops app, logging any failure.
func stopApp(app *engine.Service) {
	if err := app.Stop(); err != nil {
		logger.WithError(err).Error("Failed to stop client")
	}
}
