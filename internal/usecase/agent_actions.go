package usecase

import (
	"browser-agent/internal/config"
	"browser-agent/internal/entity"
	"browser-agent/internal/ports"
	"browser-agent/pkg/logg"
	"browser-agent/pkg/tracing"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	dispatcherName   = "Dispatcher"
	dispatcherTracer = "usecase.dispatcher"

	windowTarget = "WINDOW"
)

// DispatchState is what one dispatch may touch: the live page and the labels
// produced by the annotation pass that preceded the decision.
type DispatchState struct {
	Page          ports.Page
	BoundingBoxes []entity.BoundingBox
}

// Dispatcher executes one Action against the page and reports the outcome as
// an Observation. Browser failures never escape as errors.
type Dispatcher struct {
	startURL        string
	selectAllKey    string
	waitDuration    time.Duration
	windowScrollPx  int
	elementScrollPx int
	logger          *zap.Logger
	tracer          trace.Tracer
}

func NewDispatcher(conf *config.AgentConfig, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		startURL:        conf.StartURL,
		selectAllKey:    conf.SelectAllKey,
		waitDuration:    conf.WaitDuration,
		windowScrollPx:  conf.WindowScrollPx,
		elementScrollPx: conf.ElementScrollPx,
		logger:          logger.With(zap.String(logg.Layer, dispatcherName)),
		tracer:          otel.Tracer(dispatcherTracer),
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, action entity.Action, state *DispatchState) (obs entity.Observation) {
	const op = "Dispatch"
	logger := d.logger.With(zap.String(logg.Operation, op), zap.String(logg.Action, string(action.Kind)))

	ctx, step := tracing.StartSpan(ctx, d.tracer, logger, op,
		attribute.String("action", string(action.Kind)))
	defer func() {
		var err error
		if !obs.Success {
			err = errors.New(obs.Text)
		}

		step.End(err)
	}()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Action panicked", zap.Any("panic", r))
			obs = failed(action.Kind, fmt.Sprintf("Failed to execute %s action: %v", action.Kind, r))
		}
	}()

	spec, ok := lookupAction(action.Kind)
	if !ok {
		return failed(action.Kind, fmt.Sprintf("Failed to execute action: unsupported action %q", action.Kind))
	}

	obs = spec.execute(d, ctx, state, action.Args)

	if obs.Success {
		logger.Debug("Action succeeded", zap.String("observation", obs.Text))
	} else {
		logger.Warn("Action failed", zap.String("observation", obs.Text))
	}

	return obs
}

func (d *Dispatcher) click(ctx context.Context, state *DispatchState, args actionArgs) entity.Observation {
	const failure = "Failed to click element"

	if args == nil {
		return failed(entity.ActionClick, failure+" due to missing arguments")
	}

	label, ok := args.text(argLabel)
	if !ok {
		return missing(entity.ActionClick, failure, argLabel)
	}

	reason, ok := args.text(argReason)
	if !ok {
		return missing(entity.ActionClick, failure, argReason)
	}

	index, errText := resolveLabel(label, state.BoundingBoxes)
	if errText != "" {
		return failed(entity.ActionClick, failure+" due to "+errText)
	}

	selector := entity.LabelSelector(index)
	d.logger.Debug("Clicking element", zap.Int(logg.Label, index), zap.String(logg.Selector, selector))

	if err := state.Page.Click(ctx, selector); err != nil {
		return failed(entity.ActionClick, fmt.Sprintf("%s %d: %v", failure, index, err))
	}

	return succeeded(entity.ActionClick, fmt.Sprintf("Clicked on element %d for the reason %q", index, reason))
}

func (d *Dispatcher) typeText(ctx context.Context, state *DispatchState, args actionArgs) entity.Observation {
	const failure = "Failed to type in element"

	if args == nil {
		return failed(entity.ActionType, failure+" due to missing arguments")
	}

	label, ok := args.text(argLabel)
	if !ok {
		return missing(entity.ActionType, failure, argLabel)
	}

	text, ok := args.text(argText)
	if !ok {
		return missing(entity.ActionType, failure, argText)
	}

	reason, ok := args.text(argReason)
	if !ok {
		return missing(entity.ActionType, failure, argReason)
	}

	index, errText := resolveLabel(label, state.BoundingBoxes)
	if errText != "" {
		return failed(entity.ActionType, failure+" due to "+errText)
	}

	selector := entity.LabelSelector(index)
	d.logger.Debug("Typing into element", zap.Int(logg.Label, index), zap.String(logg.Selector, selector))

	page := state.Page
	steps := []struct {
		name string
		run  func() error
	}{
		{"click", func() error { return page.Click(ctx, selector) }},
		{"select all", func() error { return page.Press(ctx, d.selectAllKey) }},
		{"clear", func() error { return page.Press(ctx, "Backspace") }},
		{"type", func() error { return page.Type(ctx, text) }},
		{"submit", func() error { return page.Press(ctx, "Enter") }},
	}

	for _, s := range steps {
		if err := s.run(); err != nil {
			return failed(entity.ActionType, fmt.Sprintf("%s %d at %s: %v", failure, index, s.name, err))
		}
	}

	return succeeded(entity.ActionType, fmt.Sprintf("Typed %q in element %d for the reason %q", text, index, reason))
}

func (d *Dispatcher) scroll(ctx context.Context, state *DispatchState, args actionArgs) entity.Observation {
	const failure = "Failed to scroll"

	if args == nil {
		return failed(entity.ActionScroll, failure+" due to missing arguments")
	}

	target, ok := args.text(argTarget)
	if !ok {
		return missing(entity.ActionScroll, failure, argTarget)
	}

	direction, ok := args.text(argDirection)
	if !ok {
		return missing(entity.ActionScroll, failure, argDirection)
	}

	reason, ok := args.text(argReason)
	if !ok {
		return missing(entity.ActionScroll, failure, argReason)
	}

	sign := 0

	switch strings.ToLower(direction) {
	case "up":
		sign = -1
	case "down":
		sign = 1
	default:
		return failed(entity.ActionScroll,
			fmt.Sprintf(`%s due to invalid "%s" argument %q: expected "up" or "down"`, failure, argDirection, direction))
	}

	direction = strings.ToLower(direction)

	if strings.EqualFold(target, windowTarget) {
		script := fmt.Sprintf("(() => { window.scrollBy(0, %d); return true; })()", sign*d.windowScrollPx)

		if _, err := state.Page.Evaluate(ctx, script); err != nil {
			return failed(entity.ActionScroll, fmt.Sprintf("%s window: %v", failure, err))
		}

		return succeeded(entity.ActionScroll, fmt.Sprintf("Scrolled %s in window for the reason %q", direction, reason))
	}

	index, errText := resolveLabel(target, state.BoundingBoxes)
	if errText != "" {
		return failed(entity.ActionScroll, failure+" due to "+errText)
	}

	bbox := state.BoundingBoxes[index]

	if err := state.Page.MouseMove(ctx, bbox.X, bbox.Y); err != nil {
		return failed(entity.ActionScroll, fmt.Sprintf("%s element %d: %v", failure, index, err))
	}

	if err := state.Page.MouseWheel(ctx, 0, float64(sign*d.elementScrollPx)); err != nil {
		return failed(entity.ActionScroll, fmt.Sprintf("%s element %d: %v", failure, index, err))
	}

	return succeeded(entity.ActionScroll, fmt.Sprintf("Scrolled %s in element %d for the reason %q", direction, index, reason))
}

func (d *Dispatcher) wait(ctx context.Context, _ *DispatchState, args actionArgs) entity.Observation {
	const failure = "Failed to wait"

	if args == nil {
		return failed(entity.ActionWait, failure+" due to missing arguments")
	}

	reason, ok := args.text(argReason)
	if !ok {
		return missing(entity.ActionWait, failure, argReason)
	}

	timer := time.NewTimer(d.waitDuration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return failed(entity.ActionWait, fmt.Sprintf("%s: %v", failure, ctx.Err()))
	case <-timer.C:
	}

	return succeeded(entity.ActionWait, fmt.Sprintf("Waited for %s for the reason %q", d.waitDuration, reason))
}

func (d *Dispatcher) goBack(ctx context.Context, state *DispatchState, args actionArgs) entity.Observation {
	const failure = "Failed to navigate back"

	if args == nil {
		return failed(entity.ActionGoBack, failure+" due to missing arguments")
	}

	reason, ok := args.text(argReason)
	if !ok {
		return missing(entity.ActionGoBack, failure, argReason)
	}

	if err := state.Page.GoBack(ctx); err != nil {
		return failed(entity.ActionGoBack, fmt.Sprintf("%s: %v", failure, err))
	}

	url, err := state.Page.URL(ctx)
	if err != nil {
		d.logger.Debug("Failed to read URL after going back", zap.Error(err))

		url = "the previous page"
	}

	d.logger.Debug("Navigated back", zap.String(logg.URL, url))

	return succeeded(entity.ActionGoBack, fmt.Sprintf("Navigated back a page to %s for the reason %q", url, reason))
}

func (d *Dispatcher) goToStart(ctx context.Context, state *DispatchState, args actionArgs) entity.Observation {
	const failure = "Failed to navigate to the start page"

	if args == nil {
		return failed(entity.ActionGoToStart, failure+" due to missing arguments")
	}

	reason, ok := args.text(argReason)
	if !ok {
		return missing(entity.ActionGoToStart, failure, argReason)
	}

	if err := state.Page.Navigate(ctx, d.startURL); err != nil {
		return failed(entity.ActionGoToStart, fmt.Sprintf("%s %s: %v", failure, d.startURL, err))
	}

	return succeeded(entity.ActionGoToStart, fmt.Sprintf("Navigated to %s for the reason %q", d.startURL, reason))
}

// resolveLabel checks a label against the current annotation. The second
// return value is a failure description, empty when the label is usable.
func resolveLabel(label string, bboxes []entity.BoundingBox) (int, string) {
	index, err := strconv.Atoi(strings.TrimSpace(label))
	if err != nil {
		return 0, fmt.Sprintf(`invalid "%s" argument %q: not a number`, argLabel, label)
	}

	if index < 0 || index >= len(bboxes) {
		return 0, fmt.Sprintf("label %d not found on the current page (%d elements labeled)", index, len(bboxes))
	}

	return index, ""
}

// actionArgs are the decoded tool-call arguments. Values may arrive as strings
// or JSON numbers depending on the model.
type actionArgs map[string]any

// text returns the named argument as a non-blank string.
func (a actionArgs) text(name string) (string, bool) {
	var s string

	switch v := a[name].(type) {
	case string:
		s = v
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(v)
	default:
		return "", false
	}

	if strings.TrimSpace(s) == "" {
		return "", false
	}

	return s, true
}

func missing(kind entity.ActionKind, failure, field string) entity.Observation {
	return failed(kind, fmt.Sprintf(`%s due to missing "%s" argument`, failure, field))
}

func failed(kind entity.ActionKind, text string) entity.Observation {
	return entity.Observation{Action: kind, Success: false, Text: text}
}

func succeeded(kind entity.ActionKind, text string) entity.Observation {
	return entity.Observation{Action: kind, Success: true, Text: text}
}
