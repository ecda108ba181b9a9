package usecase

import (
	"browser-agent/internal/config"
	"browser-agent/internal/ports"
	"browser-agent/internal/usecase/adapters"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	Agent adapters.AgentService
}

type Params struct {
	fx.In

	Logger    *zap.Logger
	Config    *config.Config
	Launcher  ports.BrowserLauncher
	Annotator ports.Annotator
	AI        ports.AIClient
}

func NewUsecase(params Params) *Service {
	factory := newServiceFactory(params)

	return &Service{
		Agent: factory.CreateAgentService(),
	}
}
