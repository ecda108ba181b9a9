package usecase

import (
	"browser-agent/internal/config"
	"browser-agent/internal/entity"
	"browser-agent/internal/ports"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakePage records every browser operation as "<op> <args>". errs fails an
// operation by its name.
type fakePage struct {
	mu   sync.Mutex
	ops  []string
	url  string
	errs map[string]error
}

func (p *fakePage) record(name string, args ...any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	op := name
	if len(args) > 0 {
		op = strings.TrimSpace(name + " " + fmt.Sprint(args...))
	}

	p.ops = append(p.ops, op)

	return p.errs[name]
}

func (p *fakePage) Ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, len(p.ops))
	copy(out, p.ops)

	return out
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	if err := p.record("navigate", url); err != nil {
		return err
	}

	p.url = url

	return nil
}

func (p *fakePage) GoBack(context.Context) error { return p.record("go_back") }

func (p *fakePage) URL(context.Context) (string, error) { return p.url, nil }

func (p *fakePage) Click(_ context.Context, selector string) error {
	return p.record("click", selector)
}

func (p *fakePage) Press(_ context.Context, key string) error { return p.record("press", key) }

func (p *fakePage) Type(_ context.Context, text string) error { return p.record("type", text) }

func (p *fakePage) MouseMove(_ context.Context, x, y float64) error {
	return p.record("mouse_move", fmt.Sprintf("%g %g", x, y))
}

func (p *fakePage) MouseWheel(_ context.Context, dx, dy float64) error {
	return p.record("wheel", fmt.Sprintf("%g %g", dx, dy))
}

func (p *fakePage) Evaluate(_ context.Context, script string) (any, error) {
	return true, p.record("evaluate", script)
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) { return []byte("png"), nil }

func (p *fakePage) WaitForLoad(context.Context) error { return nil }

type fakeSession struct {
	page     *fakePage
	closed   int
	closeErr error
}

func (s *fakeSession) Page() ports.Page { return s.page }

func (s *fakeSession) Close(context.Context) error {
	s.closed++

	return s.closeErr
}

type fakeLauncher struct {
	session *fakeSession
	err     error
}

func (l *fakeLauncher) Launch(context.Context) (ports.Session, error) {
	if l.err != nil {
		return nil, l.err
	}

	return l.session, nil
}

// fakeAnnotator returns count labeled boxes on every pass, or the queued
// errors first.
type fakeAnnotator struct {
	count  int
	errs   []error
	passes int
}

func (a *fakeAnnotator) Annotate(context.Context, ports.Page) (*entity.Annotation, error) {
	a.passes++

	if len(a.errs) > 0 {
		err := a.errs[0]
		a.errs = a.errs[1:]

		return nil, err
	}

	bboxes := make([]entity.BoundingBox, a.count)
	for i := range bboxes {
		bboxes[i] = entity.BoundingBox{
			X:           float64(10 * i),
			Y:           float64(20 * i),
			Text:        fmt.Sprintf("element %d", i),
			ElementType: "button",
		}
	}

	return &entity.Annotation{Image: []byte("png"), BoundingBoxes: bboxes}, nil
}

type mockAI struct {
	mock.Mock
}

func (m *mockAI) Decide(ctx context.Context, req *entity.ModelRequest) (*entity.ModelResponse, error) {
	args := m.Called(ctx, req)

	resp, _ := args.Get(0).(*entity.ModelResponse)

	return resp, args.Error(1)
}

func toolCall(name, arguments string) *entity.ModelResponse {
	return &entity.ModelResponse{
		ToolCalls: []entity.ToolCall{{Name: name, Arguments: []byte(arguments)}},
	}
}

func answer(text string) *entity.ModelResponse {
	return &entity.ModelResponse{Text: "ANSWER: " + text}
}

const testStartURL = "https://start.test"

func testConfig() *config.Config {
	return &config.Config{
		BrowserConfig: &config.BrowserConfig{},
		AgentConfig: &config.AgentConfig{
			StartURL:        testStartURL,
			MaxSteps:        150,
			SelectAllKey:    "Control+A",
			WaitDuration:    time.Millisecond,
			WindowScrollPx:  500,
			ElementScrollPx: 200,
			MaxModelErrors:  3,
		},
	}
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()

	return NewDispatcher(testConfig().AgentConfig, zaptest.NewLogger(t))
}

type agentFixture struct {
	service   *AgentService
	page      *fakePage
	session   *fakeSession
	launcher  *fakeLauncher
	annotator *fakeAnnotator
	ai        *mockAI
}

func newAgentFixture(t *testing.T, conf *config.Config, labeled int) *agentFixture {
	t.Helper()

	page := &fakePage{}
	session := &fakeSession{page: page}
	f := &agentFixture{
		page:      page,
		session:   session,
		launcher:  &fakeLauncher{session: session},
		annotator: &fakeAnnotator{count: labeled},
		ai:        &mockAI{},
	}

	f.service = NewAgentService(AgentServiceParams{
		Config:    conf,
		Logger:    zaptest.NewLogger(t),
		Launcher:  f.launcher,
		Annotator: f.annotator,
		AI:        f.ai,
	})

	return f
}
