package usecase

import (
	"browser-agent/internal/entity"
	"fmt"
	"strings"
)

const maxElementText = 100

const systemPrompt = `You are a web browsing agent. Each turn you receive a task, the history of
your previous actions and a screenshot of the current page. Interactive
elements on the screenshot are outlined and tagged with a numeric label in the
top-left corner; the same labels are listed in the text with the element type
and visible text.

Choose exactly one tool call per turn:
- click: click a labeled element.
- type: clear a labeled input, type text and submit it with Enter.
- scroll: scroll the WINDOW or a labeled scrollable element up or down.
- wait: wait for the page to load.
- go_back: return to the previous page.
- go_to_start: open the start page to begin a new search.

Labels are only valid for the screenshot you are looking at. If an action
failed, read the history and try something different.

When you know the answer, do not call a tool. Reply with a single line that
starts with "ANSWER:" followed by the answer.`

// describeElements renders one line per labeled element, "label (type): text",
// falling back to the aria label when the element has no visible text.
func describeElements(bboxes []entity.BoundingBox) []string {
	lines := make([]string, 0, len(bboxes))

	for i, bbox := range bboxes {
		text := bbox.Text
		if text == "" {
			text = bbox.AriaLabel
		}

		lines = append(lines, fmt.Sprintf("%d (%s): %s", i, bbox.ElementType, truncateText(text, maxElementText)))
	}

	return lines
}

func truncateText(text string, maxLen int) string {
	text = strings.Join(strings.Fields(text), " ")

	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}

	return string(runes[:maxLen]) + "..."
}

func buildModelRequest(task string, history History, annotation *entity.Annotation) *entity.ModelRequest {
	req := &entity.ModelRequest{
		System:  systemPrompt,
		History: history.Render(),
		Task:    task,
		Tools:   ToolDefinitions(),
	}

	if annotation != nil {
		req.Elements = describeElements(annotation.BoundingBoxes)
		req.Image = annotation.Image
		req.ImageMediaType = "image/png"
	}

	return req
}
