package browser

import (
	"browser-agent/internal/config"
	"browser-agent/internal/ports"
	"browser-agent/pkg/logg"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
}

// NewLauncher returns the launcher for the configured BROWSER_DRIVER.
func NewLauncher(params Params) ports.BrowserLauncher {
	params.Logger.Info("Using browser driver", zap.String(logg.Driver, params.Config.BrowserConfig.Driver))

	if params.Config.BrowserConfig.Driver == config.DriverChromedp {
		return NewChromedpLauncher(params)
	}

	return NewPlaywrightLauncher(params)
}
