package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Task struct {
	ID          uuid.UUID
	Description string
	Status      TaskStatus
	CreatedAt   time.Time
	CompletedAt *time.Time
	Steps       []Step
	MaxSteps    int
	History     string
	Result      string
	Error       string
}

type TaskStatus string

const (
	TaskStatusInProgress        TaskStatus = "in_progress"
	TaskStatusCompleted         TaskStatus = "completed"
	TaskStatusStepLimitExceeded TaskStatus = "step_limit_exceeded"
	TaskStatusCancelled         TaskStatus = "cancelled"
	TaskStatusFailed            TaskStatus = "failed"
)

// RunOptions overrides configured defaults for a single run. Zero values keep
// the defaults.
type RunOptions struct {
	MaxSteps int
}

// Step is the record of one loop iteration.
type Step struct {
	ID          uuid.UUID
	Number      int
	Action      ActionKind
	Description string
	Timestamp   time.Time
	Success     bool
	Screenshot  string
}

// BoundingBox describes one labeled interactive element. X and Y are the
// centre of the element in viewport coordinates.
type BoundingBox struct {
	X           float64
	Y           float64
	Text        string
	ElementType string
	AriaLabel   string
}

// LabelAttribute is set by the labeling script on every labeled element.
const LabelAttribute = "data-interactive-index"

// LabelSelector returns the CSS selector of the element tagged with label in
// the most recent annotation pass.
func LabelSelector(label int) string {
	return fmt.Sprintf("[%s='%d']", LabelAttribute, label)
}

// Annotation is the output of one annotation pass. Labels are indices into
// BoundingBoxes and are only valid until the next pass.
type Annotation struct {
	Image         []byte
	BoundingBoxes []BoundingBox
}

type ActionKind string

const (
	ActionClick     ActionKind = "click"
	ActionType      ActionKind = "type"
	ActionScroll    ActionKind = "scroll"
	ActionWait      ActionKind = "wait"
	ActionGoBack    ActionKind = "go_back"
	ActionGoToStart ActionKind = "go_to_start"
	ActionRetry     ActionKind = "retry"
	ActionAnswer    ActionKind = "answer"
)

// Action is the parsed decision of one model call.
type Action struct {
	Kind ActionKind
	Args map[string]any
	// Message carries the Retry diagnostic or the Answer text.
	Message string
}

type Observation struct {
	Action  ActionKind
	Success bool
	Text    string
}

// ToolDefinition is the provider-neutral description of one action tool.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
	Required    []string
}

type ModelRequest struct {
	System         string
	History        string
	Task           string
	Elements       []string
	Image          []byte
	ImageMediaType string
	Tools          []ToolDefinition
}

type ToolCall struct {
	Name      string
	Arguments json.RawMessage
}

type ModelResponse struct {
	Text      string
	ToolCalls []ToolCall
}
