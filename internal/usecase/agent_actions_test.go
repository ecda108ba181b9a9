package usecase

import (
	"browser-agent/internal/entity"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boxes(n int) []entity.BoundingBox {
	out := make([]entity.BoundingBox, n)
	for i := range out {
		out[i] = entity.BoundingBox{X: float64(10 * i), Y: float64(20 * i), ElementType: "div"}
	}

	return out
}

func TestDispatch_MissingArgumentsTouchNothing(t *testing.T) {
	tests := []struct {
		name string
		kind entity.ActionKind
		args map[string]any
		want string
	}{
		{"click without arguments", entity.ActionClick, nil, "Failed to click element due to missing arguments"},
		{"click without label", entity.ActionClick, map[string]any{"reason": "open"}, `Failed to click element due to missing "bbox_label" argument`},
		{"click without reason", entity.ActionClick, map[string]any{"bbox_label": "1"}, `Failed to click element due to missing "reason" argument`},
		{"type without text", entity.ActionType, map[string]any{"bbox_label": "1", "reason": "r"}, `Failed to type in element due to missing "text" argument`},
		{"type with blank text", entity.ActionType, map[string]any{"bbox_label": "1", "text": "  ", "reason": "r"}, `Failed to type in element due to missing "text" argument`},
		{"scroll without target", entity.ActionScroll, map[string]any{"direction": "up", "reason": "r"}, `Failed to scroll due to missing "target" argument`},
		{"scroll without direction", entity.ActionScroll, map[string]any{"target": "WINDOW", "reason": "r"}, `Failed to scroll due to missing "direction" argument`},
		{"wait without reason", entity.ActionWait, map[string]any{}, `Failed to wait due to missing "reason" argument`},
		{"go back without reason", entity.ActionGoBack, map[string]any{"reason": ""}, `Failed to navigate back due to missing "reason" argument`},
		{"go to start without arguments", entity.ActionGoToStart, nil, "Failed to navigate to the start page due to missing arguments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := &fakePage{}

			obs := newTestDispatcher(t).Dispatch(context.Background(),
				entity.Action{Kind: tt.kind, Args: tt.args},
				&DispatchState{Page: page, BoundingBoxes: boxes(3)})

			assert.False(t, obs.Success)
			assert.Equal(t, tt.kind, obs.Action)
			assert.Equal(t, tt.want, obs.Text)
			assert.Empty(t, page.Ops())
		})
	}
}

func TestDispatch_LabelMustExistInCurrentAnnotation(t *testing.T) {
	page := &fakePage{}
	d := newTestDispatcher(t)

	obs := d.Dispatch(context.Background(),
		entity.Action{Kind: entity.ActionClick, Args: map[string]any{"bbox_label": "7", "reason": "open"}},
		&DispatchState{Page: page, BoundingBoxes: boxes(3)})

	assert.False(t, obs.Success)
	assert.Contains(t, obs.Text, "label 7 not found")

	obs = d.Dispatch(context.Background(),
		entity.Action{Kind: entity.ActionType, Args: map[string]any{"bbox_label": "first", "text": "x", "reason": "r"}},
		&DispatchState{Page: page, BoundingBoxes: boxes(3)})

	assert.False(t, obs.Success)
	assert.Contains(t, obs.Text, "not a number")

	obs = d.Dispatch(context.Background(),
		entity.Action{Kind: entity.ActionScroll, Args: map[string]any{"target": "-1", "direction": "up", "reason": "r"}},
		&DispatchState{Page: page, BoundingBoxes: boxes(3)})

	assert.False(t, obs.Success)
	assert.Contains(t, obs.Text, "label -1 not found")

	assert.Empty(t, page.Ops())
}

func TestDispatch_Click(t *testing.T) {
	page := &fakePage{}

	obs := newTestDispatcher(t).Dispatch(context.Background(),
		entity.Action{Kind: entity.ActionClick, Args: map[string]any{"bbox_label": float64(2), "reason": "open result"}},
		&DispatchState{Page: page, BoundingBoxes: boxes(3)})

	assert.True(t, obs.Success)
	assert.Equal(t, `Clicked on element 2 for the reason "open result"`, obs.Text)
	assert.Equal(t, []string{"click [data-interactive-index='2']"}, page.Ops())
}

func TestDispatch_ClickFailureBecomesObservation(t *testing.T) {
	page := &fakePage{errs: map[string]error{"click": errors.New("element detached")}}

	obs := newTestDispatcher(t).Dispatch(context.Background(),
		entity.Action{Kind: entity.ActionClick, Args: map[string]any{"bbox_label": "0", "reason": "open"}},
		&DispatchState{Page: page, BoundingBoxes: boxes(1)})

	assert.False(t, obs.Success)
	assert.Equal(t, "Failed to click element 0: element detached", obs.Text)
}

func TestDispatch_TypeClearsThenSubmits(t *testing.T) {
	page := &fakePage{}

	obs := newTestDispatcher(t).Dispatch(context.Background(),
		entity.Action{Kind: entity.ActionType, Args: map[string]any{"bbox_label": "1", "text": "golang", "reason": "search"}},
		&DispatchState{Page: page, BoundingBoxes: boxes(2)})

	require.True(t, obs.Success, obs.Text)
	assert.Equal(t, `Typed "golang" in element 1 for the reason "search"`, obs.Text)
	assert.Equal(t, []string{
		"click [data-interactive-index='1']",
		"press Control+A",
		"press Backspace",
		"type golang",
		"press Enter",
	}, page.Ops())
}

func TestDispatch_TypeStopsAtFirstFailure(t *testing.T) {
	page := &fakePage{errs: map[string]error{"press": errors.New("keyboard unavailable")}}

	obs := newTestDispatcher(t).Dispatch(context.Background(),
		entity.Action{Kind: entity.ActionType, Args: map[string]any{"bbox_label": "0", "text": "x", "reason": "r"}},
		&DispatchState{Page: page, BoundingBoxes: boxes(1)})

	assert.False(t, obs.Success)
	assert.Contains(t, obs.Text, "Failed to type in element 0 at select all")
	assert.Equal(t, []string{"click [data-interactive-index='0']", "press Control+A"}, page.Ops())
}

func TestDispatch_ScrollWindow(t *testing.T) {
	page := &fakePage{}
	d := newTestDispatcher(t)

	obs := d.Dispatch(context.Background(),
		entity.Action{Kind: entity.ActionScroll, Args: map[string]any{"target": "WINDOW", "direction": "down", "reason": "more results"}},
		&DispatchState{Page: page})

	assert.True(t, obs.Success)
	assert.Equal(t, `Scrolled down in window for the reason "more results"`, obs.Text)

	obs = d.Dispatch(context.Background(),
		entity.Action{Kind: entity.ActionScroll, Args: map[string]any{"target": "window", "direction": "Up", "reason": "back to top"}},
		&DispatchState{Page: page})

	assert.True(t, obs.Success)
	assert.Equal(t, `Scrolled up in window for the reason "back to top"`, obs.Text)

	assert.Equal(t, []string{
		"evaluate (() => { window.scrollBy(0, 500); return true; })()",
		"evaluate (() => { window.scrollBy(0, -500); return true; })()",
	}, page.Ops())
}

func TestDispatch_ScrollElement(t *testing.T) {
	page := &fakePage{}

	obs := newTestDispatcher(t).Dispatch(context.Background(),
		entity.Action{Kind: entity.ActionScroll, Args: map[string]any{"target": "1", "direction": "up", "reason": "see list"}},
		&DispatchState{Page: page, BoundingBoxes: boxes(2)})

	assert.True(t, obs.Success)
	assert.Equal(t, `Scrolled up in element 1 for the reason "see list"`, obs.Text)
	assert.Equal(t, []string{"mouse_move 10 20", "wheel 0 -200"}, page.Ops())
}

func TestDispatch_ScrollRejectsUnknownDirection(t *testing.T) {
	page := &fakePage{}

	obs := newTestDispatcher(t).Dispatch(context.Background(),
		entity.Action{Kind: entity.ActionScroll, Args: map[string]any{"target": "WINDOW", "direction": "left", "reason": "r"}},
		&DispatchState{Page: page})

	assert.False(t, obs.Success)
	assert.Contains(t, obs.Text, `expected "up" or "down"`)
	assert.Empty(t, page.Ops())
}

func TestDispatch_Wait(t *testing.T) {
	d := newTestDispatcher(t)
	action := entity.Action{Kind: entity.ActionWait, Args: map[string]any{"reason": "page loading"}}

	obs := d.Dispatch(context.Background(), action, &DispatchState{Page: &fakePage{}})
	assert.True(t, obs.Success)
	assert.Equal(t, `Waited for 1ms for the reason "page loading"`, obs.Text)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d.waitDuration = time.Hour
	obs = d.Dispatch(ctx, action, &DispatchState{Page: &fakePage{}})
	assert.False(t, obs.Success)
	assert.Equal(t, "Failed to wait: context canceled", obs.Text)
}

func TestDispatch_GoBack(t *testing.T) {
	page := &fakePage{url: "https://previous.test/page"}

	obs := newTestDispatcher(t).Dispatch(context.Background(),
		entity.Action{Kind: entity.ActionGoBack, Args: map[string]any{"reason": "wrong page"}},
		&DispatchState{Page: page})

	assert.True(t, obs.Success)
	assert.Equal(t, `Navigated back a page to https://previous.test/page for the reason "wrong page"`, obs.Text)
	assert.Equal(t, []string{"go_back"}, page.Ops())
}

func TestDispatch_GoToStart(t *testing.T) {
	page := &fakePage{}

	obs := newTestDispatcher(t).Dispatch(context.Background(),
		entity.Action{Kind: entity.ActionGoToStart, Args: map[string]any{"reason": "new search"}},
		&DispatchState{Page: page})

	assert.True(t, obs.Success)
	assert.Equal(t, `Navigated to https://start.test for the reason "new search"`, obs.Text)
	assert.Equal(t, []string{"navigate https://start.test"}, page.Ops())
}

type panickingPage struct {
	fakePage
}

func (p *panickingPage) Click(context.Context, string) error {
	panic("driver crashed")
}

func TestDispatch_RecoversFromPanics(t *testing.T) {
	obs := newTestDispatcher(t).Dispatch(context.Background(),
		entity.Action{Kind: entity.ActionClick, Args: map[string]any{"bbox_label": "0", "reason": "r"}},
		&DispatchState{Page: &panickingPage{}, BoundingBoxes: boxes(1)})

	assert.False(t, obs.Success)
	assert.Equal(t, "Failed to execute click action: driver crashed", obs.Text)
}

func TestDispatch_RejectsNonDispatchableKinds(t *testing.T) {
	for _, kind := range []entity.ActionKind{entity.ActionRetry, entity.ActionAnswer, "navigate"} {
		obs := newTestDispatcher(t).Dispatch(context.Background(), entity.Action{Kind: kind}, &DispatchState{Page: &fakePage{}})

		assert.False(t, obs.Success)
		assert.Contains(t, obs.Text, "unsupported action")
	}
}

func TestRegistry_CoversDispatchableKinds(t *testing.T) {
	want := []entity.ActionKind{
		entity.ActionClick,
		entity.ActionType,
		entity.ActionScroll,
		entity.ActionWait,
		entity.ActionGoBack,
		entity.ActionGoToStart,
	}

	var got []entity.ActionKind
	for _, spec := range Actions() {
		got = append(got, spec.Kind)

		assert.NotNil(t, spec.execute, spec.Kind)
		assert.Contains(t, spec.Required, argReason, spec.Kind)

		for _, field := range spec.Required {
			assert.Contains(t, spec.Parameters, field, spec.Kind)
		}
	}

	assert.Equal(t, want, got)

	defs := ToolDefinitions()
	require.Len(t, defs, len(want))
	assert.Equal(t, "click", defs[0].Name)
	assert.Equal(t, "go_to_start", defs[5].Name)
}
