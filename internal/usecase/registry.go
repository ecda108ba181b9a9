package usecase

import (
	"browser-agent/internal/entity"
	"context"
)

type actionExecutor func(d *Dispatcher, ctx context.Context, state *DispatchState, args actionArgs) entity.Observation

// ActionSpec binds a dispatchable action kind to its tool schema and executor.
// The tool name offered to the model is the kind itself.
type ActionSpec struct {
	Kind        entity.ActionKind
	Description string
	Parameters  map[string]any
	Required    []string

	execute actionExecutor
}

func stringParam(description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
	}
}

const (
	argReason    = "reason"
	argLabel     = "bbox_label"
	argText      = "text"
	argTarget    = "target"
	argDirection = "direction"
)

var reasonParam = stringParam("Why this action moves the task forward.")

var actionRegistry = []ActionSpec{
	{
		Kind:        entity.ActionClick,
		Description: "Click the element with the given label on the current screenshot.",
		Parameters: map[string]any{
			argReason: reasonParam,
			argLabel:  stringParam("Numeric label of the element to click."),
		},
		Required: []string{argReason, argLabel},
		execute:  (*Dispatcher).click,
	},
	{
		Kind:        entity.ActionType,
		Description: "Clear the element with the given label, type text into it and press Enter.",
		Parameters: map[string]any{
			argReason: reasonParam,
			argLabel:  stringParam("Numeric label of the input element."),
			argText:   stringParam("Text to type."),
		},
		Required: []string{argReason, argLabel, argText},
		execute:  (*Dispatcher).typeText,
	},
	{
		Kind:        entity.ActionScroll,
		Description: "Scroll the whole window or the element with the given label.",
		Parameters: map[string]any{
			argReason: reasonParam,
			argTarget: stringParam("WINDOW to scroll the page, or the numeric label of a scrollable element."),
			argDirection: map[string]any{
				"type":        "string",
				"description": "Scroll direction.",
				"enum":        []string{"up", "down"},
			},
		},
		Required: []string{argReason, argTarget, argDirection},
		execute:  (*Dispatcher).scroll,
	},
	{
		Kind:        entity.ActionWait,
		Description: "Wait a few seconds for the page to finish loading.",
		Parameters: map[string]any{
			argReason: reasonParam,
		},
		Required: []string{argReason},
		execute:  (*Dispatcher).wait,
	},
	{
		Kind:        entity.ActionGoBack,
		Description: "Go back to the previous page.",
		Parameters: map[string]any{
			argReason: reasonParam,
		},
		Required: []string{argReason},
		execute:  (*Dispatcher).goBack,
	},
	{
		Kind:        entity.ActionGoToStart,
		Description: "Open the start page to begin a new search.",
		Parameters: map[string]any{
			argReason: reasonParam,
		},
		Required: []string{argReason},
		execute:  (*Dispatcher).goToStart,
	},
}

// Actions returns the dispatchable action set in the order tools are offered.
func Actions() []ActionSpec {
	out := make([]ActionSpec, len(actionRegistry))
	copy(out, actionRegistry)

	return out
}

func lookupAction(kind entity.ActionKind) (ActionSpec, bool) {
	for _, spec := range actionRegistry {
		if spec.Kind == kind {
			return spec, true
		}
	}

	return ActionSpec{}, false
}

func actionByToolName(name string) (ActionSpec, bool) {
	return lookupAction(entity.ActionKind(name))
}

// ToolDefinitions converts the registry into the provider-neutral tool list.
func ToolDefinitions() []entity.ToolDefinition {
	defs := make([]entity.ToolDefinition, 0, len(actionRegistry))

	for _, spec := range actionRegistry {
		defs = append(defs, entity.ToolDefinition{
			Name:        string(spec.Kind),
			Description: spec.Description,
			Parameters:  spec.Parameters,
			Required:    spec.Required,
		})
	}

	return defs
}
