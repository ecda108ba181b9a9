package ai

import (
	"browser-agent/internal/config"
	"browser-agent/internal/entity"
	"browser-agent/internal/ports"
	"browser-agent/pkg/logg"
	"encoding/base64"
	"fmt"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	aiClientName = "AIClient"
	aiTracer     = "ai.client"

	defaultImageMediaType = "image/png"
)

type Params struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
}

// NewClient returns the model client for the configured AI_PROVIDER.
func NewClient(params Params) (ports.AIClient, error) {
	logger := params.Logger.With(
		zap.String(logg.Layer, aiClientName),
		zap.String(logg.Provider, params.Config.AIConfig.Provider),
	)

	switch params.Config.AIConfig.Provider {
	case config.ProviderAnthropic:
		return NewAnthropicClient(params.Config.AIConfig, logger), nil
	case config.ProviderOpenAI:
		return NewOpenAIClient(params.Config.AIConfig, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: anthropic, openai)", params.Config.AIConfig.Provider)
	}
}

// userText renders the task and the element list that accompany the
// screenshot in the final user turn.
func userText(req *entity.ModelRequest) string {
	var b strings.Builder

	b.WriteString(req.Task)

	if len(req.Elements) > 0 {
		b.WriteString("\n\nLabeled elements on the current screenshot:\n")
		b.WriteString(strings.Join(req.Elements, "\n"))
	} else {
		b.WriteString("\n\nNo labeled elements were found on the current screenshot.")
	}

	return b.String()
}

func imagePayload(req *entity.ModelRequest) (mediaType, data string, ok bool) {
	if len(req.Image) == 0 {
		return "", "", false
	}

	mediaType = req.ImageMediaType
	if mediaType == "" {
		mediaType = defaultImageMediaType
	}

	return mediaType, base64.StdEncoding.EncodeToString(req.Image), true
}
