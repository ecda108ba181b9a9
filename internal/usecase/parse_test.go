package usecase

import (
	"browser-agent/internal/entity"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseModelResponse(t *testing.T) {
	tests := []struct {
		name string
		resp *entity.ModelResponse
		want entity.Action
	}{
		{
			name: "answer",
			resp: &entity.ModelResponse{Text: "  ANSWER:   Canberra  "},
			want: entity.Action{Kind: entity.ActionAnswer, Message: "Canberra"},
		},
		{
			name: "answer wins over tool calls",
			resp: &entity.ModelResponse{
				Text:      "ANSWER: done",
				ToolCalls: []entity.ToolCall{{Name: "click", Arguments: []byte(`{"bbox_label":"1"}`)}},
			},
			want: entity.Action{Kind: entity.ActionAnswer, Message: "done"},
		},
		{
			name: "first tool call wins",
			resp: &entity.ModelResponse{
				Text: "I will search first.",
				ToolCalls: []entity.ToolCall{
					{Name: "type", Arguments: []byte(`{"bbox_label":"0","text":"go","reason":"search"}`)},
					{Name: "click", Arguments: []byte(`{"bbox_label":"1","reason":"open"}`)},
				},
			},
			want: entity.Action{
				Kind: entity.ActionType,
				Args: map[string]any{"bbox_label": "0", "text": "go", "reason": "search"},
			},
		},
		{
			name: "tool call without arguments",
			resp: &entity.ModelResponse{ToolCalls: []entity.ToolCall{{Name: "go_back", Arguments: []byte("null")}}},
			want: entity.Action{Kind: entity.ActionGoBack},
		},
		{
			name: "unknown tool",
			resp: &entity.ModelResponse{ToolCalls: []entity.ToolCall{{Name: "navigate", Arguments: []byte(`{}`)}}},
			want: entity.Action{Kind: entity.ActionRetry, Message: "Invalid tool call: navigate"},
		},
		{
			name: "terminal kinds are not tools",
			resp: &entity.ModelResponse{ToolCalls: []entity.ToolCall{{Name: "answer", Arguments: []byte(`{}`)}}},
			want: entity.Action{Kind: entity.ActionRetry, Message: "Invalid tool call: answer"},
		},
		{
			name: "no tool call",
			resp: &entity.ModelResponse{Text: "Let me think about it."},
			want: entity.Action{Kind: entity.ActionRetry, Message: noActionMessage},
		},
		{
			name: "nil response",
			resp: nil,
			want: entity.Action{Kind: entity.ActionRetry, Message: noActionMessage},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseModelResponse(tt.resp))
		})
	}
}

func TestParseModelResponse_UndecodableArguments(t *testing.T) {
	action := parseModelResponse(&entity.ModelResponse{
		ToolCalls: []entity.ToolCall{{Name: "click", Arguments: []byte(`{"bbox_label":`)}},
	})

	assert.Equal(t, entity.ActionRetry, action.Kind)
	assert.Contains(t, action.Message, "Invalid arguments for tool call click")
}

func TestDescribeElements(t *testing.T) {
	lines := describeElements([]entity.BoundingBox{
		{Text: "Search", ElementType: "input"},
		{AriaLabel: "Close dialog", ElementType: "button"},
		{Text: "multi\n  line   text", ElementType: "a"},
	})

	assert.Equal(t, []string{
		"0 (input): Search",
		"1 (button): Close dialog",
		"2 (a): multi line text",
	}, lines)
}

func TestBuildModelRequest(t *testing.T) {
	annotation := &entity.Annotation{
		Image:         []byte("png"),
		BoundingBoxes: []entity.BoundingBox{{Text: "Go", ElementType: "button"}},
	}

	req := buildModelRequest("find gophers", NewHistory(0).Record("Waited for 5s"), annotation)

	assert.Equal(t, systemPrompt, req.System)
	assert.Equal(t, "Previous actions history:\n1. Waited for 5s", req.History)
	assert.Equal(t, "find gophers", req.Task)
	assert.Equal(t, []string{"0 (button): Go"}, req.Elements)
	assert.Equal(t, []byte("png"), req.Image)
	assert.Equal(t, "image/png", req.ImageMediaType)
	assert.Len(t, req.Tools, len(Actions()))
}
