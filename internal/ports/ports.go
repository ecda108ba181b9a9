package ports

import (
	"browser-agent/internal/entity"
	"context"
)

// Page is the browser surface the agent drives. Selectors are CSS selectors.
type Page interface {
	Navigate(ctx context.Context, url string) error
	GoBack(ctx context.Context) error
	URL(ctx context.Context) (string, error)
	Click(ctx context.Context, selector string) error
	Press(ctx context.Context, key string) error
	Type(ctx context.Context, text string) error
	MouseMove(ctx context.Context, x, y float64) error
	MouseWheel(ctx context.Context, deltaX, deltaY float64) error
	Evaluate(ctx context.Context, script string) (any, error)
	Screenshot(ctx context.Context) ([]byte, error)
	WaitForLoad(ctx context.Context) error
}

// Session owns one browser process and its active page.
type Session interface {
	Page() Page
	Close(ctx context.Context) error
}

type BrowserLauncher interface {
	Launch(ctx context.Context) (Session, error)
}

type Annotator interface {
	Annotate(ctx context.Context, page Page) (*entity.Annotation, error)
}

type AIClient interface {
	Decide(ctx context.Context, req *entity.ModelRequest) (*entity.ModelResponse, error)
}

type AgentExecutor interface {
	Execute(ctx context.Context, task string, opts entity.RunOptions) (*entity.Task, error)
}
