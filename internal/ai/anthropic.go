package ai

import (
	"browser-agent/internal/config"
	"browser-agent/internal/entity"
	"browser-agent/pkg/apperr"
	"browser-agent/pkg/logg"
	"browser-agent/pkg/tracing"
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// AnthropicClient asks Claude for the next action using tool calling.
type AnthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	logger    *zap.Logger
	tracer    trace.Tracer
}

func NewAnthropicClient(conf *config.AIConfig, logger *zap.Logger) *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(conf.APIKey)}
	if conf.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(conf.BaseURL))
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(opts...),
		model:     conf.Model,
		maxTokens: int64(conf.MaxTokens),
		logger:    logger,
		tracer:    otel.Tracer(aiTracer),
	}
}

func (c *AnthropicClient) Decide(ctx context.Context, req *entity.ModelRequest) (resp *entity.ModelResponse, err error) {
	const op = "Decide"
	logger := c.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, c.tracer, logger, op,
		attribute.String("model", c.model),
		attribute.Int("elements_count", len(req.Elements)))
	defer func() {
		step.End(err)
	}()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    anthropicSystem(req),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropicUserBlocks(req)...),
		},
		Tools: anthropicTools(req.Tools),
	}

	step.AddEvent("sending request")

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeAIError, err, map[string]any{
			apperr.MetaReason: "api_error",
			apperr.MetaStage:  apperr.StageAI,
		})
	}

	resp = &entity.ModelResponse{}

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if resp.Text == "" {
				resp.Text = block.Text
			} else {
				resp.Text += "\n" + block.Text
			}
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, entity.ToolCall{
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}

	if resp.Text == "" && len(resp.ToolCalls) == 0 {
		return nil, apperr.Wrap(op, apperr.CodeAIError, errors.New("empty response from model"), map[string]any{
			apperr.MetaReason: "empty_response",
			apperr.MetaStage:  apperr.StageAI,
		})
	}

	logger.Debug("Model responded",
		zap.String("stop_reason", string(msg.StopReason)),
		zap.Int("tool_calls", len(resp.ToolCalls)))

	return resp, nil
}

func anthropicSystem(req *entity.ModelRequest) []anthropic.TextBlockParam {
	var system []anthropic.TextBlockParam

	for _, text := range []string{req.System, req.History} {
		if text != "" {
			system = append(system, anthropic.TextBlockParam{Text: text})
		}
	}

	return system
}

func anthropicUserBlocks(req *entity.ModelRequest) []anthropic.ContentBlockParamUnion {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, 2)

	if mediaType, data, ok := imagePayload(req); ok {
		blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, data))
	}

	return append(blocks, anthropic.NewTextBlock(userText(req)))
}

func anthropicTools(defs []entity.ToolDefinition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))

	for _, def := range defs {
		tool := anthropic.ToolParam{
			Name:        def.Name,
			Description: anthropic.String(def.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: def.Parameters,
				Required:   def.Required,
			},
		}

		tools = append(tools, anthropic.ToolUnionParam{OfTool: &tool})
	}

	return tools
}
