package browser

import (
	"browser-agent/internal/config"
	"browser-agent/internal/ports"
	"browser-agent/pkg/apperr"
	"browser-agent/pkg/logg"
	"browser-agent/pkg/tracing"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	chromedpLauncherName = "ChromedpLauncher"
	chromedpTracer       = "browser.chromedp"
)

// ChromedpLauncher drives Chrome over the DevTools protocol without the
// playwright driver process.
type ChromedpLauncher struct {
	config *config.BrowserConfig
	logger *zap.Logger
	tracer trace.Tracer
}

func NewChromedpLauncher(params Params) *ChromedpLauncher {
	return &ChromedpLauncher{
		config: params.Config.BrowserConfig,
		logger: params.Logger.With(zap.String(logg.Layer, chromedpLauncherName)),
		tracer: otel.Tracer(chromedpTracer),
	}
}

func (l *ChromedpLauncher) Launch(ctx context.Context) (session ports.Session, err error) {
	const op = "Launch"
	logger := l.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, l.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.config.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(l.config.ViewportWidth, l.config.ViewportHeight),
	)

	if l.config.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(l.config.UserDataDir))
	}

	// The browser outlives the caller's context; it is released by Close.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Sugar().Debugf))

	s := &chromedpSession{
		logger:      l.logger,
		tracer:      l.tracer,
		allocCancel: allocCancel,
		tabCancel:   tabCancel,
	}
	s.page = &chromedpPage{
		tabCtx:  tabCtx,
		timeout: time.Duration(l.config.Timeout) * time.Millisecond,
		slowMo:  time.Duration(l.config.SlowMo) * time.Millisecond,
		logger:  l.logger,
		tracer:  l.tracer,
	}

	// The first Run allocates the browser, so its context must stay tabCtx.
	// Cancellation and the timeout abort it by tearing the browser down.
	startErr := awaitStart(ctx, s.page.timeout,
		func() error {
			return chromedp.Run(tabCtx,
				chromedp.EmulateViewport(int64(l.config.ViewportWidth), int64(l.config.ViewportHeight)),
			)
		},
		func() {
			tabCancel()
			allocCancel()
		},
	)
	if startErr != nil {
		if closeErr := s.Close(ctx); closeErr != nil {
			logger.Warn("Cleanup after failed launch was incomplete", zap.Error(closeErr))
		}

		return nil, apperr.Wrap(op, apperr.CodeInternal, startErr, map[string]any{
			apperr.MetaReason: "chrome_start_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	logger.Info("Browser launched successfully")

	return s, nil
}

// awaitStart runs start and waits for it, ctx, or timeout. On ctx or timeout
// it calls abort and waits for start to return before reporting. A
// non-positive timeout waits on ctx alone.
func awaitStart(ctx context.Context, timeout time.Duration, start func() error, abort func()) error {
	done := make(chan error, 1)
	go func() {
		done <- start()
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		expired = timer.C
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		abort()
		<-done

		return ctx.Err()
	case <-expired:
		abort()
		<-done

		return fmt.Errorf("browser did not start within %s", timeout)
	}
}

type chromedpSession struct {
	logger      *zap.Logger
	tracer      trace.Tracer
	page        *chromedpPage
	allocCancel context.CancelFunc
	tabCancel   context.CancelFunc
}

func (s *chromedpSession) Page() ports.Page {
	return s.page
}

// Close closes the tab and browser gracefully, then kills the allocator.
func (s *chromedpSession) Close(ctx context.Context) (err error) {
	const op = "Close"
	logger := s.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, s.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if cancelErr := chromedp.Cancel(s.page.tabCtx); cancelErr != nil && !errors.Is(cancelErr, context.Canceled) {
		logger.Warn("Teardown step failed", zap.String("resource", "browser"), zap.Error(cancelErr))
		err = apperr.Wrap(op, apperr.CodeInternal, cancelErr, map[string]any{
			apperr.MetaStage: apperr.StageTeardown,
		})
	}

	s.tabCancel()
	s.allocCancel()

	logger.Info("Browser closed")

	return err
}

type chromedpPage struct {
	tabCtx  context.Context
	timeout time.Duration
	slowMo  time.Duration
	mouseX  float64
	mouseY  float64
	logger  *zap.Logger
	tracer  trace.Tracer
}

// run executes actions on the tab, bounded by the page timeout and by the
// caller's context.
func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(p.tabCtx, p.timeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if p.slowMo > 0 {
		actions = append([]chromedp.Action{chromedp.Sleep(p.slowMo)}, actions...)
	}

	return chromedp.Run(runCtx, actions...)
}

func (p *chromedpPage) traced(ctx context.Context, op string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) (err error) {
	logger := p.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, p.tracer, logger, op, attrs...)
	defer func() {
		step.End(err)
	}()

	return fn(ctx)
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	const op = "Navigate"

	return p.traced(ctx, op, func(ctx context.Context) error {
		if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
			return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
				apperr.MetaReason: "goto_failed",
				apperr.MetaStage:  apperr.StageNavigation,
				apperr.MetaURL:    url,
			})
		}

		return nil
	}, attribute.String("url", url))
}

func (p *chromedpPage) GoBack(ctx context.Context) error {
	const op = "GoBack"

	return p.traced(ctx, op, func(ctx context.Context) error {
		if err := p.run(ctx, chromedp.NavigateBack()); err != nil {
			return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
				apperr.MetaReason: "go_back_failed",
				apperr.MetaStage:  apperr.StageNavigation,
			})
		}

		return nil
	})
}

func (p *chromedpPage) URL(ctx context.Context) (string, error) {
	var url string

	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", apperr.WrapWithReason("URL", apperr.CodeInternal, err, "location_failed")
	}

	return url, nil
}

func (p *chromedpPage) Click(ctx context.Context, selector string) error {
	const op = "Click"

	return p.traced(ctx, op, func(ctx context.Context) error {
		if err := p.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
			return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
				apperr.MetaReason:   "click_failed",
				apperr.MetaStage:    apperr.StageInteraction,
				apperr.MetaSelector: selector,
			})
		}

		return nil
	}, attribute.String("selector", selector))
}

// Press accepts playwright-style combos such as "Control+A" or "Enter".
func (p *chromedpPage) Press(ctx context.Context, key string) error {
	const op = "Press"

	return p.traced(ctx, op, func(ctx context.Context) error {
		keys, modifiers, err := parseKeyCombo(key)
		if err != nil {
			return apperr.InvalidReqError(op, "key", err)
		}

		if err := p.run(ctx, chromedp.KeyEvent(keys, chromedp.KeyModifiers(modifiers...))); err != nil {
			return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
				apperr.MetaReason: "press_failed",
				apperr.MetaStage:  apperr.StageInteraction,
			})
		}

		return nil
	}, attribute.String("key", key))
}

func (p *chromedpPage) Type(ctx context.Context, text string) error {
	const op = "Type"

	return p.traced(ctx, op, func(ctx context.Context) error {
		if err := p.run(ctx, chromedp.KeyEvent(text)); err != nil {
			return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
				apperr.MetaReason: "type_failed",
				apperr.MetaStage:  apperr.StageInteraction,
			})
		}

		return nil
	})
}

func (p *chromedpPage) MouseMove(ctx context.Context, x, y float64) error {
	if err := p.run(ctx, input.DispatchMouseEvent(input.MouseMoved, x, y)); err != nil {
		return apperr.WrapWithReason("MouseMove", apperr.CodeActionFailed, err, "mouse_move_failed")
	}

	p.mouseX, p.mouseY = x, y

	return nil
}

func (p *chromedpPage) MouseWheel(ctx context.Context, deltaX, deltaY float64) error {
	wheel := input.DispatchMouseEvent(input.MouseWheel, p.mouseX, p.mouseY).
		WithDeltaX(deltaX).
		WithDeltaY(deltaY)

	if err := p.run(ctx, wheel); err != nil {
		return apperr.WrapWithReason("MouseWheel", apperr.CodeActionFailed, err, "mouse_wheel_failed")
	}

	return nil
}

func (p *chromedpPage) Evaluate(ctx context.Context, script string) (any, error) {
	var result any

	if err := p.run(ctx, chromedp.Evaluate(script, &result)); err != nil {
		return nil, apperr.WrapWithReason("Evaluate", apperr.CodeInternal, err, "evaluate_failed")
	}

	return result, nil
}

func (p *chromedpPage) Screenshot(ctx context.Context) ([]byte, error) {
	const op = "Screenshot"

	var image []byte

	err := p.traced(ctx, op, func(ctx context.Context) error {
		if err := p.run(ctx, chromedp.CaptureScreenshot(&image)); err != nil {
			return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
				apperr.MetaReason: "screenshot_failed",
				apperr.MetaStage:  apperr.StageScreenshot,
			})
		}

		return nil
	})

	return image, err
}

func (p *chromedpPage) WaitForLoad(ctx context.Context) error {
	return p.run(ctx, chromedp.WaitReady("body", chromedp.ByQuery))
}

var namedKeys = map[string]string{
	"enter":     kb.Enter,
	"backspace": kb.Backspace,
	"tab":       kb.Tab,
	"escape":    kb.Escape,
	"delete":    kb.Delete,
	"arrowup":   kb.ArrowUp,
	"arrowdown": kb.ArrowDown,
	"pagedown":  kb.PageDown,
	"pageup":    kb.PageUp,
}

var modifierKeys = map[string]input.Modifier{
	"control": input.ModifierCtrl,
	"ctrl":    input.ModifierCtrl,
	"meta":    input.ModifierMeta,
	"alt":     input.ModifierAlt,
	"shift":   input.ModifierShift,
}

// parseKeyCombo splits "Control+A" into the key sequence and modifiers
// understood by chromedp.KeyEvent.
func parseKeyCombo(combo string) (string, []input.Modifier, error) {
	parts := strings.Split(combo, "+")
	key := parts[len(parts)-1]

	var modifiers []input.Modifier

	for _, part := range parts[:len(parts)-1] {
		modifier, ok := modifierKeys[strings.ToLower(part)]
		if !ok {
			return "", nil, fmt.Errorf("unknown modifier %q in %q", part, combo)
		}

		modifiers = append(modifiers, modifier)
	}

	if named, ok := namedKeys[strings.ToLower(key)]; ok {
		return named, modifiers, nil
	}

	if len([]rune(key)) != 1 {
		return "", nil, fmt.Errorf("unsupported key %q", key)
	}

	if len(modifiers) > 0 {
		key = strings.ToLower(key)
	}

	return key, modifiers, nil
}
