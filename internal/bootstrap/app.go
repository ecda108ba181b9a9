package bootstrap

import (
	"browser-agent/internal/ai"
	"browser-agent/internal/browser"
	"browser-agent/internal/config"
	"browser-agent/internal/console"
	"browser-agent/internal/ports"
	"browser-agent/internal/usecase"
	"context"
	"errors"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewApp(opts ...fx.Option) *fx.App {
	base := []fx.Option{
		fx.Provide(
			config.GetConfig,
			newLogger,
			newTraceProvider,

			browser.NewLauncher,
			fx.Annotate(browser.NewAnnotator, fx.As(new(ports.Annotator))),
			ai.NewClient,

			usecase.NewUsecase,

			console.NewInterface,
		),

		fx.Invoke(func(*sdktrace.TracerProvider) {}),

		fx.WithLogger(newFxLogger),
		fx.StartTimeout(10 * time.Second),
	}

	return fx.New(append(base, opts...)...)
}

func newFxLogger(logger *zap.Logger) fxevent.Logger {
	fxLogger := &fxevent.ZapLogger{Logger: logger.Named("fx")}
	fxLogger.UseLogLevel(zapcore.DebugLevel)

	return fxLogger
}

// runApp starts app, runs fn and stops app again. Stop runs even when ctx is
// already cancelled.
func runApp(ctx context.Context, app *fx.App, fn func(ctx context.Context) error) (err error) {
	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()

	if err := app.Start(startCtx); err != nil {
		return err
	}

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.StopTimeout())
		defer cancel()

		err = errors.Join(err, app.Stop(stopCtx))
	}()

	return fn(ctx)
}
