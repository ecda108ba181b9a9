package usecase

import (
	"browser-agent/internal/config"
	"browser-agent/internal/entity"
	"browser-agent/internal/ports"
	"browser-agent/pkg/apperr"
	"browser-agent/pkg/logg"
	"browser-agent/pkg/tracing"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	agentServiceName = "AgentService"
	agentTracer      = "usecase.agent"

	teardownTimeout = 30 * time.Second
)

type AgentService struct {
	config        *config.AgentConfig
	screenshotDir string
	logger        *zap.Logger
	launcher      ports.BrowserLauncher
	annotator     ports.Annotator
	ai            ports.AIClient
	dispatcher    *Dispatcher
	tracer        trace.Tracer
}

type AgentServiceParams struct {
	fx.In

	Config    *config.Config
	Logger    *zap.Logger
	Launcher  ports.BrowserLauncher
	Annotator ports.Annotator
	AI        ports.AIClient
}

func NewAgentService(params AgentServiceParams) *AgentService {
	return &AgentService{
		config:        params.Config.AgentConfig,
		screenshotDir: params.Config.BrowserConfig.ScreenshotDir,
		logger:        params.Logger.With(zap.String(logg.Layer, agentServiceName)),
		launcher:      params.Launcher,
		annotator:     params.Annotator,
		ai:            params.AI,
		dispatcher:    NewDispatcher(params.Config.AgentConfig, params.Logger),
		tracer:        otel.Tracer(agentTracer),
	}
}

// run holds the state of one Execute call. Nothing here outlives the run.
type run struct {
	task       *entity.Task
	page       ports.Page
	history    History
	annotation *entity.Annotation
	step       int
	// screenshots counts saved screenshots for this run only.
	screenshots int
	modelErrors int
	logger      *zap.Logger
}

// Execute runs the annotate, decide, act loop for one task until the model
// answers, the step budget runs out, ctx is cancelled, or an unrecoverable
// error occurs. The browser session is always closed before returning.
//
// Running out of steps is not an error: the task is returned with status
// step_limit_exceeded and the partial history.
func (s *AgentService) Execute(ctx context.Context, taskDescription string, opts entity.RunOptions) (resp *entity.Task, err error) {
	const op = "Execute"
	logger := s.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op,
		attribute.String("task_description", taskDescription))
	defer func() {
		step.End(err)
	}()

	if taskDescription == "" {
		return nil, apperr.InvalidReqError(op, "task_description", errors.New("task description cannot be empty"))
	}

	maxSteps := s.config.MaxSteps
	if opts.MaxSteps > 0 {
		maxSteps = opts.MaxSteps
	}

	task := &entity.Task{
		ID:          uuid.New(),
		Description: taskDescription,
		Status:      entity.TaskStatusInProgress,
		CreatedAt:   time.Now(),
		Steps:       make([]entity.Step, 0),
		MaxSteps:    maxSteps,
	}

	logger = logger.With(zap.String(logg.RunID, task.ID.String()))
	step.SetAttributes(attribute.String("run_id", task.ID.String()), attribute.Int("max_steps", maxSteps))
	logger.Info("Starting task", zap.String("task", taskDescription), zap.Int("max_steps", maxSteps))

	session, err := s.launcher.Launch(ctx)
	if err != nil {
		s.fail(task, err)

		return task, apperr.Wrap(op, apperr.CodeBrowserNotReady, err, map[string]any{
			apperr.MetaReason: "launch_failed",
			apperr.MetaStage:  apperr.StageStartup,
			apperr.MetaRunID:  task.ID.String(),
		})
	}
	defer s.closeSession(ctx, session, logger)

	r := &run{
		task:    task,
		page:    session.Page(),
		history: NewHistory(s.config.HistoryLimit),
		logger:  logger,
	}

	if err := r.page.Navigate(ctx, s.config.StartURL); err != nil {
		s.fail(task, err)

		return task, apperr.Wrap(op, apperr.CodeUnavailable, err, map[string]any{
			apperr.MetaReason: "start_navigation_failed",
			apperr.MetaStage:  apperr.StageStartup,
			apperr.MetaURL:    s.config.StartURL,
			apperr.MetaRunID:  task.ID.String(),
		})
	}

	step.AddEvent("session ready")

	return s.loop(ctx, r, maxSteps)
}

func (s *AgentService) loop(ctx context.Context, r *run, maxSteps int) (*entity.Task, error) {
	const op = "loop"

	for r.step < maxSteps {
		if err := ctx.Err(); err != nil {
			return s.cancelled(op, r, err)
		}

		r.step++
		logger := r.logger.With(zap.Int(logg.Step, r.step))

		action, screenshot, err := s.decide(ctx, r)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return s.cancelled(op, r, ctxErr)
			}

			r.modelErrors++
			logger.Warn("Model request failed",
				zap.Int("consecutive_failures", r.modelErrors),
				zap.Error(err))

			if r.modelErrors >= s.config.MaxModelErrors {
				s.fail(r.task, err)
				r.task.History = r.history.Render()

				return r.task, apperr.Wrap(op, apperr.CodeAIError, err, map[string]any{
					apperr.MetaReason: "too_many_model_errors",
					apperr.MetaStage:  apperr.StageAI,
					apperr.MetaStep:   r.step,
					apperr.MetaRunID:  r.task.ID.String(),
				})
			}

			continue
		}

		r.modelErrors = 0

		var obs entity.Observation

		switch action.Kind {
		case entity.ActionAnswer:
			s.complete(r, action.Message, screenshot)
			logger.Info("Task completed", zap.String("answer", action.Message))

			return r.task, nil
		case entity.ActionRetry:
			obs = entity.Observation{Action: entity.ActionRetry, Success: false, Text: action.Message}
		default:
			obs = s.dispatcher.Dispatch(ctx, action, &DispatchState{
				Page:          r.page,
				BoundingBoxes: r.annotation.BoundingBoxes,
			})
		}

		logger.Info("Step finished",
			zap.String(logg.Action, string(action.Kind)),
			zap.Bool("success", obs.Success),
			zap.String("observation", obs.Text))

		r.history = r.history.Record(obs.Text)
		r.task.Steps = append(r.task.Steps, entity.Step{
			ID:          uuid.New(),
			Number:      r.step,
			Action:      obs.Action,
			Description: obs.Text,
			Timestamp:   time.Now(),
			Success:     obs.Success,
			Screenshot:  screenshot,
		})
	}

	r.task.Status = entity.TaskStatusStepLimitExceeded
	r.task.Error = fmt.Sprintf("task did not complete within %d steps", maxSteps)
	r.task.History = r.history.Render()

	r.logger.Warn("Step limit reached", zap.Int("max_steps", maxSteps))

	return r.task, nil
}

// decide annotates the page and asks the model for the next action. A failed
// annotation becomes a Retry so the model sees it in the history; only model
// transport failures are returned as errors.
func (s *AgentService) decide(ctx context.Context, r *run) (action entity.Action, screenshot string, err error) {
	const op = "decide"
	logger := r.logger.With(zap.String(logg.Operation, op), zap.Int(logg.Step, r.step))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op,
		attribute.Int("step", r.step))
	defer func() {
		step.End(err)
	}()

	annotation, err := s.annotator.Annotate(ctx, r.page)
	if err != nil {
		if ctx.Err() != nil {
			return entity.Action{}, "", ctx.Err()
		}

		logger.Warn("Annotation failed", zap.Error(err))
		r.annotation = &entity.Annotation{BoundingBoxes: []entity.BoundingBox{}}

		return retry(fmt.Sprintf("Failed to capture the current page: %v", err)), "", nil
	}

	r.annotation = annotation
	step.SetAttributes(attribute.Int("elements_count", len(annotation.BoundingBoxes)))

	screenshot = s.saveScreenshot(r, annotation.Image)

	resp, err := s.ai.Decide(ctx, buildModelRequest(r.task.Description, r.history, annotation))
	if err != nil {
		return entity.Action{}, screenshot, err
	}

	action = parseModelResponse(resp)
	logger.Debug("Model decided", zap.String(logg.Action, string(action.Kind)), zap.Any("args", action.Args))

	return action, screenshot, nil
}

// saveScreenshot writes the annotated screenshot when a screenshot directory
// is configured and returns its path. Failures are logged and ignored.
func (s *AgentService) saveScreenshot(r *run, image []byte) string {
	if s.screenshotDir == "" || len(image) == 0 {
		return ""
	}

	if err := os.MkdirAll(s.screenshotDir, 0o755); err != nil {
		r.logger.Warn("Failed to create screenshot directory", zap.Error(err))

		return ""
	}

	r.screenshots++
	path := filepath.Join(s.screenshotDir, fmt.Sprintf("%s-%03d.png", r.task.ID, r.screenshots))

	if err := os.WriteFile(path, image, 0o644); err != nil {
		r.logger.Warn("Failed to save screenshot", zap.String("path", path), zap.Error(err))

		return ""
	}

	return path
}

func (s *AgentService) complete(r *run, answer, screenshot string) {
	now := time.Now()

	r.task.Status = entity.TaskStatusCompleted
	r.task.Result = answer
	r.task.CompletedAt = &now
	r.task.History = r.history.Render()
	r.task.Steps = append(r.task.Steps, entity.Step{
		ID:          uuid.New(),
		Number:      r.step,
		Action:      entity.ActionAnswer,
		Description: answer,
		Timestamp:   now,
		Success:     true,
		Screenshot:  screenshot,
	})
}

func (s *AgentService) cancelled(op string, r *run, err error) (*entity.Task, error) {
	r.task.Status = entity.TaskStatusCancelled
	r.task.Error = err.Error()
	r.task.History = r.history.Render()

	r.logger.Info("Task cancelled", zap.Int(logg.Step, r.step))

	return r.task, apperr.Wrap(op, apperr.CodeCancelled, err, map[string]any{
		apperr.MetaReason: "context_cancelled",
		apperr.MetaStep:   r.step,
		apperr.MetaRunID:  r.task.ID.String(),
	})
}

func (s *AgentService) fail(task *entity.Task, err error) {
	task.Status = entity.TaskStatusFailed
	task.Error = err.Error()
}

// closeSession runs even when ctx is already cancelled.
func (s *AgentService) closeSession(ctx context.Context, session ports.Session, logger *zap.Logger) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()

	if err := session.Close(closeCtx); err != nil {
		logger.Warn("Failed to close browser session", zap.Error(err))

		return
	}

	logger.Debug("Browser session closed")
}
