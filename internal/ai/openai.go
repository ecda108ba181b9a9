package ai

import (
	"browser-agent/internal/config"
	"browser-agent/internal/entity"
	"browser-agent/pkg/apperr"
	"browser-agent/pkg/logg"
	"browser-agent/pkg/tracing"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// OpenAIClient talks to OpenAI or any server exposing the chat completions
// API (AI_BASE_URL).
type OpenAIClient struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *zap.Logger
	tracer    trace.Tracer
}

func NewOpenAIClient(conf *config.AIConfig, logger *zap.Logger) *OpenAIClient {
	clientConf := openai.DefaultConfig(conf.APIKey)
	if conf.BaseURL != "" {
		clientConf.BaseURL = conf.BaseURL
	}

	return &OpenAIClient{
		client:    openai.NewClientWithConfig(clientConf),
		model:     conf.Model,
		maxTokens: conf.MaxTokens,
		logger:    logger,
		tracer:    otel.Tracer(aiTracer),
	}
}

func (c *OpenAIClient) Decide(ctx context.Context, req *entity.ModelRequest) (resp *entity.ModelResponse, err error) {
	const op = "Decide"
	logger := c.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, c.tracer, logger, op,
		attribute.String("model", c.model),
		attribute.Int("elements_count", len(req.Elements)))
	defer func() {
		step.End(err)
	}()

	request := openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  openAIMessages(req),
		Tools:     openAITools(req.Tools),
	}

	step.AddEvent("sending request")

	completion, err := c.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeAIError, fmt.Errorf("OpenAI error: %w", err), map[string]any{
			apperr.MetaReason: "api_error",
			apperr.MetaStage:  apperr.StageAI,
		})
	}

	if len(completion.Choices) == 0 {
		return nil, apperr.Wrap(op, apperr.CodeAIError, errors.New("no response choices"), map[string]any{
			apperr.MetaReason: "empty_response",
			apperr.MetaStage:  apperr.StageAI,
		})
	}

	message := completion.Choices[0].Message
	resp = &entity.ModelResponse{Text: message.Content}

	for _, call := range message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, entity.ToolCall{
			Name:      call.Function.Name,
			Arguments: json.RawMessage(call.Function.Arguments),
		})
	}

	logger.Debug("Model responded",
		zap.String("finish_reason", string(completion.Choices[0].FinishReason)),
		zap.Int("tool_calls", len(resp.ToolCalls)))

	return resp, nil
}

func openAIMessages(req *entity.ModelRequest) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, 3)

	for _, text := range []string{req.System, req.History} {
		if text != "" {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: text,
			})
		}
	}

	parts := []openai.ChatMessagePart{
		{
			Type: openai.ChatMessagePartTypeText,
			Text: userText(req),
		},
	}

	if mediaType, data, ok := imagePayload(req); ok {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:" + mediaType + ";base64," + data,
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	return append(messages, openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: parts,
	})
}

func openAITools(defs []entity.ToolDefinition) []openai.Tool {
	tools := make([]openai.Tool, 0, len(defs))

	for _, def := range defs {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  jsonSchema(def),
			},
		})
	}

	return tools
}

func jsonSchema(def entity.ToolDefinition) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": def.Parameters,
		"required":   def.Required,
	}
}
