package browser

import (
	"browser-agent/internal/config"
	"browser-agent/internal/entity"
	"browser-agent/internal/ports"
	"browser-agent/pkg/apperr"
	"browser-agent/pkg/logg"
	"browser-agent/pkg/tracing"
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	annotatorName   = "Annotator"
	annotatorTracer = "browser.annotator"
)

type Annotator struct {
	logger      *zap.Logger
	tracer      trace.Tracer
	settleDelay time.Duration
	attempts    int
	retryDelay  time.Duration
}

type AnnotatorParams struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
}

func NewAnnotator(params AnnotatorParams) *Annotator {
	agentConf := params.Config.AgentConfig

	attempts := agentConf.AnnotateAttempts
	if attempts <= 0 {
		attempts = 1
	}

	return &Annotator{
		logger:      params.Logger.With(zap.String(logg.Layer, annotatorName)),
		tracer:      otel.Tracer(annotatorTracer),
		settleDelay: agentConf.SettleDelay,
		attempts:    attempts,
		retryDelay:  agentConf.AnnotateRetryDelay,
	}
}

// Annotate labels the visible interactive elements, captures a screenshot with
// the labels drawn and then removes the overlays. The label attributes stay on
// the elements so selectors built with entity.LabelSelector remain valid until the
// next pass. When labeling never succeeds the bounding-box set is empty; only
// a screenshot failure is returned as an error.
func (a *Annotator) Annotate(ctx context.Context, page ports.Page) (annotation *entity.Annotation, err error) {
	const op = "Annotate"
	logger := a.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, a.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if err := sleep(ctx, a.settleDelay); err != nil {
		return nil, apperr.Wrap(op, apperr.CodeCancelled, err, map[string]any{
			apperr.MetaStage: apperr.StageAnnotation,
		})
	}

	if err := page.WaitForLoad(ctx); err != nil {
		logger.Debug("Page did not reach load state", zap.Error(err))
	}

	step.AddEvent("marking page")

	bboxes := a.markWithRetry(ctx, page, logger)
	step.SetAttributes(attribute.Int("bbox_count", len(bboxes)))

	step.AddEvent("capturing screenshot")

	image, err := page.Screenshot(ctx)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "screenshot_failed",
			apperr.MetaStage:  apperr.StageScreenshot,
		})
	}

	if _, err := page.Evaluate(ctx, removeMarksCall); err != nil {
		logger.Warn("Failed to remove label overlays", zap.Error(err))
	}

	return &entity.Annotation{
		Image:         image,
		BoundingBoxes: bboxes,
	}, nil
}

func (a *Annotator) markWithRetry(ctx context.Context, page ports.Page, logger *zap.Logger) []entity.BoundingBox {
	for attempt := 1; attempt <= a.attempts; attempt++ {
		bboxes, err := a.mark(ctx, page)
		if err == nil {
			return bboxes
		}

		logger.Debug("Labeling attempt failed, page may still be loading",
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt == a.attempts {
			break
		}

		if err := sleep(ctx, a.retryDelay); err != nil {
			break
		}
	}

	logger.Warn("Labeling retries exhausted, continuing without bounding boxes",
		zap.Int("attempts", a.attempts))

	return []entity.BoundingBox{}
}

func (a *Annotator) mark(ctx context.Context, page ports.Page) ([]entity.BoundingBox, error) {
	if _, err := page.Evaluate(ctx, markPageScript()); err != nil {
		return nil, fmt.Errorf("inject labeling script: %w", err)
	}

	result, err := page.Evaluate(ctx, markPageCall)
	if err != nil {
		return nil, fmt.Errorf("run labeling script: %w", err)
	}

	return parseBoundingBoxes(result)
}

func parseBoundingBoxes(result any) ([]entity.BoundingBox, error) {
	if result == nil {
		return []entity.BoundingBox{}, nil
	}

	items, ok := result.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected labeling result type %T", result)
	}

	bboxes := make([]entity.BoundingBox, 0, len(items))

	for i, item := range items {
		fields, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("unexpected bounding box %d type %T", i, item)
		}

		bboxes = append(bboxes, entity.BoundingBox{
			X:           getFloat(fields, "x"),
			Y:           getFloat(fields, "y"),
			Text:        strings.TrimSpace(getString(fields, "text")),
			ElementType: getString(fields, "type"),
			AriaLabel:   getString(fields, "ariaLabel"),
		})
	}

	return bboxes, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}

	return ""
}

func getFloat(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}

	return 0
}
