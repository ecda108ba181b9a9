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
	"os"
	"sync"

	"github.com/playwright-community/playwright-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	playwrightLauncherName = "PlaywrightLauncher"
	playwrightTracer       = "browser.playwright"
	loadStateTimeout       = 5000
)

type PlaywrightLauncher struct {
	config      *config.BrowserConfig
	logger      *zap.Logger
	tracer      trace.Tracer
	installOnce sync.Once
	installErr  error
}

func NewPlaywrightLauncher(params Params) *PlaywrightLauncher {
	return &PlaywrightLauncher{
		config: params.Config.BrowserConfig,
		logger: params.Logger.With(zap.String(logg.Layer, playwrightLauncherName)),
		tracer: otel.Tracer(playwrightTracer),
	}
}

func (l *PlaywrightLauncher) install() error {
	l.installOnce.Do(func() {
		if l.config.SkipInstall {
			return
		}

		l.installErr = playwright.Install(&playwright.RunOptions{
			Browsers: []string{"chromium"},
		})
	})

	return l.installErr
}

// Launch starts a dedicated playwright driver, browser and page. Anything
// acquired before a failure is released before returning.
func (l *PlaywrightLauncher) Launch(ctx context.Context) (session ports.Session, err error) {
	const op = "Launch"
	logger := l.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, l.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	logger.Info("Launching browser...")
	step.AddEvent("installing playwright")

	if err := l.install(); err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "playwright_install_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	step.AddEvent("starting playwright")

	pw, err := playwright.Run()
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "playwright_start_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	s := &playwrightSession{
		config: l.config,
		logger: l.logger,
		tracer: l.tracer,
		pw:     pw,
	}

	defer func() {
		if err != nil {
			if closeErr := s.Close(context.WithoutCancel(ctx)); closeErr != nil {
				logger.Warn("Cleanup after failed launch was incomplete", zap.Error(closeErr))
			}
		}
	}()

	if l.config.UserDataDir != "" {
		err = s.launchPersistent(ctx)
	} else {
		err = s.launchNew(ctx)
	}

	if err != nil {
		return nil, err
	}

	logger.Info("Browser launched successfully")

	return s, nil
}

type playwrightSession struct {
	config         *config.BrowserConfig
	logger         *zap.Logger
	tracer         trace.Tracer
	pw             *playwright.Playwright
	browser        playwright.Browser
	browserContext playwright.BrowserContext
	page           *playwrightPage
}

func (s *playwrightSession) Page() ports.Page {
	return s.page
}

func (s *playwrightSession) launchPersistent(ctx context.Context) (err error) {
	const op = "launchPersistent"
	logger := s.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, s.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if err := os.MkdirAll(s.config.UserDataDir, 0o755); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "mkdir_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	browserContext, err := s.pw.Chromium.LaunchPersistentContext(s.config.UserDataDir, playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(s.config.Headless),
		SlowMo:   playwright.Float(float64(s.config.SlowMo)),
		Viewport: &playwright.Size{
			Width:  s.config.ViewportWidth,
			Height: s.config.ViewportHeight,
		},
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
		},
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "launch_persistent_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	s.browserContext = browserContext

	var page playwright.Page

	if pages := browserContext.Pages(); len(pages) > 0 {
		page = pages[0]
	} else if page, err = browserContext.NewPage(); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "new_page_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	s.page = s.newPage(page)

	return nil
}

func (s *playwrightSession) launchNew(ctx context.Context) (err error) {
	const op = "launchNew"
	logger := s.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, s.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	browser, err := s.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(s.config.Headless),
		SlowMo:   playwright.Float(float64(s.config.SlowMo)),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
		},
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "browser_launch_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	s.browser = browser

	browserContext, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  s.config.ViewportWidth,
			Height: s.config.ViewportHeight,
		},
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "context_create_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	s.browserContext = browserContext

	page, err := browserContext.NewPage()
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "page_create_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	s.page = s.newPage(page)

	return nil
}

func (s *playwrightSession) newPage(page playwright.Page) *playwrightPage {
	page.SetDefaultTimeout(float64(s.config.Timeout))

	return &playwrightPage{
		session: s,
		page:    page,
		timeout: float64(s.config.Timeout),
		logger:  s.logger,
		tracer:  s.tracer,
	}
}

// Close tears the session down in order: page, context, browser, driver.
// Every step runs even if an earlier one fails; failures are logged and
// returned joined.
func (s *playwrightSession) Close(ctx context.Context) (err error) {
	const op = "Close"
	logger := s.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, s.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	var errs []error

	teardown := func(name string, fn func() error) {
		if fnErr := fn(); fnErr != nil {
			logger.Warn("Teardown step failed", zap.String("resource", name), zap.Error(fnErr))
			errs = append(errs, fmt.Errorf("close %s: %w", name, fnErr))
		}
	}

	if s.page != nil && !s.page.page.IsClosed() {
		teardown("page", func() error { return s.page.page.Close() })
	}

	if s.browserContext != nil {
		teardown("context", func() error { return s.browserContext.Close() })
	}

	if s.browser != nil {
		teardown("browser", func() error { return s.browser.Close() })
	}

	if s.pw != nil {
		teardown("playwright", s.pw.Stop)
	}

	logger.Info("Browser closed")

	if len(errs) > 0 {
		return apperr.Wrap(op, apperr.CodeInternal, errors.Join(errs...), map[string]any{
			apperr.MetaStage: apperr.StageTeardown,
		})
	}

	return nil
}

type playwrightPage struct {
	session *playwrightSession
	page    playwright.Page
	timeout float64
	logger  *zap.Logger
	tracer  trace.Tracer
}

// ensurePageActive switches to another open page of the context when the
// tracked one has been closed, creating a fresh page as a last resort.
func (p *playwrightPage) ensurePageActive(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !p.page.IsClosed() {
		return nil
	}

	browserContext := p.session.browserContext
	if browserContext == nil {
		return errors.New("browser context is nil")
	}

	p.logger.Info("Page closed, reconnecting to active page...")

	for _, candidate := range browserContext.Pages() {
		if !candidate.IsClosed() {
			p.page = candidate

			return nil
		}
	}

	page, err := browserContext.NewPage()
	if err != nil {
		return fmt.Errorf("failed to create new page: %w", err)
	}

	p.page = page

	return nil
}

func (p *playwrightPage) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, *tracing.Span, error) {
	logger := p.logger.With(zap.String(logg.Operation, op))
	ctx, step := tracing.StartSpan(ctx, p.tracer, logger, op, attrs...)

	if err := p.ensurePageActive(ctx); err != nil {
		return ctx, step, apperr.Wrap(op, apperr.CodeBrowserNotReady, err, map[string]any{
			apperr.MetaReason: "page_not_active",
		})
	}

	return ctx, step, nil
}

func (p *playwrightPage) Navigate(ctx context.Context, url string) (err error) {
	const op = "Navigate"

	_, step, err := p.start(ctx, op, attribute.String("url", url))
	defer func() {
		step.End(err)
	}()

	if err != nil {
		return err
	}

	if _, err = p.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(p.timeout),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "goto_failed",
			apperr.MetaStage:  apperr.StageNavigation,
			apperr.MetaURL:    url,
		})
	}

	return nil
}

func (p *playwrightPage) GoBack(ctx context.Context) (err error) {
	const op = "GoBack"

	_, step, err := p.start(ctx, op)
	defer func() {
		step.End(err)
	}()

	if err != nil {
		return err
	}

	if _, err = p.page.GoBack(playwright.PageGoBackOptions{
		Timeout:   playwright.Float(p.timeout),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "go_back_failed",
			apperr.MetaStage:  apperr.StageNavigation,
		})
	}

	return nil
}

func (p *playwrightPage) URL(ctx context.Context) (string, error) {
	if err := p.ensurePageActive(ctx); err != nil {
		return "", err
	}

	return p.page.URL(), nil
}

func (p *playwrightPage) Click(ctx context.Context, selector string) (err error) {
	const op = "Click"

	_, step, err := p.start(ctx, op, attribute.String("selector", selector))
	defer func() {
		step.End(err)
	}()

	if err != nil {
		return err
	}

	if err = p.page.Locator(selector).Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(p.timeout),
	}); err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason:   "click_failed",
			apperr.MetaStage:    apperr.StageInteraction,
			apperr.MetaSelector: selector,
		})
	}

	return nil
}

func (p *playwrightPage) Press(ctx context.Context, key string) (err error) {
	const op = "Press"

	_, step, err := p.start(ctx, op, attribute.String("key", key))
	defer func() {
		step.End(err)
	}()

	if err != nil {
		return err
	}

	if err = p.page.Keyboard().Press(key); err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "press_failed",
			apperr.MetaStage:  apperr.StageInteraction,
		})
	}

	return nil
}

func (p *playwrightPage) Type(ctx context.Context, text string) (err error) {
	const op = "Type"

	_, step, err := p.start(ctx, op)
	defer func() {
		step.End(err)
	}()

	if err != nil {
		return err
	}

	if err = p.page.Keyboard().Type(text); err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "type_failed",
			apperr.MetaStage:  apperr.StageInteraction,
		})
	}

	return nil
}

func (p *playwrightPage) MouseMove(ctx context.Context, x, y float64) error {
	const op = "MouseMove"

	if err := p.ensurePageActive(ctx); err != nil {
		return apperr.WrapWithReason(op, apperr.CodeBrowserNotReady, err, "page_not_active")
	}

	if err := p.page.Mouse().Move(x, y); err != nil {
		return apperr.WrapWithReason(op, apperr.CodeActionFailed, err, "mouse_move_failed")
	}

	return nil
}

func (p *playwrightPage) MouseWheel(ctx context.Context, deltaX, deltaY float64) error {
	const op = "MouseWheel"

	if err := p.ensurePageActive(ctx); err != nil {
		return apperr.WrapWithReason(op, apperr.CodeBrowserNotReady, err, "page_not_active")
	}

	if err := p.page.Mouse().Wheel(deltaX, deltaY); err != nil {
		return apperr.WrapWithReason(op, apperr.CodeActionFailed, err, "mouse_wheel_failed")
	}

	return nil
}

func (p *playwrightPage) Evaluate(ctx context.Context, script string) (result any, err error) {
	const op = "Evaluate"

	if err := p.ensurePageActive(ctx); err != nil {
		return nil, apperr.WrapWithReason(op, apperr.CodeBrowserNotReady, err, "page_not_active")
	}

	result, err = p.page.Evaluate(script)
	if err != nil {
		return nil, apperr.WrapWithReason(op, apperr.CodeInternal, err, "evaluate_failed")
	}

	return result, nil
}

func (p *playwrightPage) Screenshot(ctx context.Context) (image []byte, err error) {
	const op = "Screenshot"

	_, step, err := p.start(ctx, op)
	defer func() {
		step.End(err)
	}()

	if err != nil {
		return nil, err
	}

	image, err = p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(false),
		Type:     playwright.ScreenshotTypePng,
	})
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "screenshot_failed",
			apperr.MetaStage:  apperr.StageScreenshot,
		})
	}

	return image, nil
}

func (p *playwrightPage) WaitForLoad(ctx context.Context) error {
	if err := p.ensurePageActive(ctx); err != nil {
		return err
	}

	return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateLoad,
		Timeout: playwright.Float(loadStateTimeout),
	})
}
