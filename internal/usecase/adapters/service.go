package adapters

import "browser-agent/internal/ports"

type AgentService interface {
	ports.AgentExecutor
}
