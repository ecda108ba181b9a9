package usecase

import (
	"browser-agent/internal/entity"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	answerPrefix = "ANSWER:"

	noActionMessage = "No action selected. Please select a valid action to proceed with the task."
)

// parseModelResponse maps a model reply onto exactly one Action. Replies that
// start with ANSWER: finish the run; otherwise the first tool call wins and
// anything unusable becomes a Retry carrying a diagnostic.
func parseModelResponse(resp *entity.ModelResponse) entity.Action {
	if resp == nil {
		return retry(noActionMessage)
	}

	if text := strings.TrimSpace(resp.Text); strings.HasPrefix(text, answerPrefix) {
		return entity.Action{
			Kind:    entity.ActionAnswer,
			Message: strings.TrimSpace(strings.TrimPrefix(text, answerPrefix)),
		}
	}

	if len(resp.ToolCalls) == 0 {
		return retry(noActionMessage)
	}

	call := resp.ToolCalls[0]

	spec, ok := actionByToolName(call.Name)
	if !ok {
		return retry(fmt.Sprintf("Invalid tool call: %s", call.Name))
	}

	args, err := decodeArguments(call.Arguments)
	if err != nil {
		return retry(fmt.Sprintf("Invalid arguments for tool call %s: %v", call.Name, err))
	}

	return entity.Action{Kind: spec.Kind, Args: args}
}

func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var args map[string]any
	if err := json.Unmarshal(trimmed, &args); err != nil {
		return nil, err
	}

	return args, nil
}

func retry(message string) entity.Action {
	return entity.Action{Kind: entity.ActionRetry, Message: message}
}
