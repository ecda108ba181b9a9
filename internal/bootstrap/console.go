package bootstrap

import (
	"browser-agent/internal/console"
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// RunConsole serves the interactive console until the user exits or ctx is
// done.
func RunConsole(ctx context.Context) error {
	var (
		consoleInterface *console.Interface
		logger           *zap.Logger
	)

	app := NewApp(fx.Populate(&consoleInterface, &logger))

	return runApp(ctx, app, func(ctx context.Context) error {
		logger.Info("Starting console interface")
		defer logger.Info("Console interface stopped")

		return consoleInterface.Run(ctx)
	})
}
