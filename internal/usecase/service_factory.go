package usecase

import (
	"browser-agent/internal/usecase/adapters"
)

type serviceFactory struct {
	deps Params
}

func newServiceFactory(deps Params) *serviceFactory {
	return &serviceFactory{
		deps: deps,
	}
}

func (f *serviceFactory) CreateAgentService() adapters.AgentService {
	return NewAgentService(AgentServiceParams{
		Config:    f.deps.Config,
		Logger:    f.deps.Logger,
		Launcher:  f.deps.Launcher,
		Annotator: f.deps.Annotator,
		AI:        f.deps.AI,
	})
}
