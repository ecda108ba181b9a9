package console

import (
	"browser-agent/internal/config"
	"browser-agent/internal/entity"
	"browser-agent/internal/usecase"
	"browser-agent/pkg/apperr"
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubAgent struct {
	tasks  []string
	result func(ctx context.Context, task string) (*entity.Task, error)
}

func (a *stubAgent) Execute(ctx context.Context, task string, _ entity.RunOptions) (*entity.Task, error) {
	a.tasks = append(a.tasks, task)

	return a.result(ctx, task)
}

func newTestInterface(t *testing.T, input string, agent *stubAgent) (*Interface, *bytes.Buffer) {
	t.Helper()

	var out bytes.Buffer

	i := NewInterface(Params{
		Config: &config.Config{
			AIConfig:      &config.AIConfig{Provider: config.ProviderAnthropic},
			BrowserConfig: &config.BrowserConfig{Driver: config.DriverPlaywright},
			AgentConfig:   &config.AgentConfig{StartURL: "https://start.test"},
		},
		Logger:  zaptest.NewLogger(t),
		Usecase: &usecase.Service{Agent: agent},
	})
	i.in = strings.NewReader(input)
	i.out = &out

	return i, &out
}

func TestRun_ExecutesTasksUntilExit(t *testing.T) {
	agent := &stubAgent{
		result: func(_ context.Context, task string) (*entity.Task, error) {
			return &entity.Task{
				Status: entity.TaskStatusCompleted,
				Result: "answer to " + task,
				Steps:  make([]entity.Step, 3),
			}, nil
		},
	}

	i, out := newTestInterface(t, "help\n\nfind gophers\nexit\nnever run\n", agent)

	require.NoError(t, i.Run(context.Background()))

	assert.Equal(t, []string{"find gophers"}, agent.tasks)
	assert.Contains(t, out.String(), "Answer: answer to find gophers")
	assert.Contains(t, out.String(), "Steps taken: 3")
	assert.Contains(t, out.String(), "Shutting down...")
}

func TestRun_StopsAtEOF(t *testing.T) {
	agent := &stubAgent{
		result: func(context.Context, string) (*entity.Task, error) {
			return &entity.Task{
				Status:  entity.TaskStatusStepLimitExceeded,
				History: "Previous actions history:\n1. Waited for 5s",
				Steps:   make([]entity.Step, 1),
			}, nil
		},
	}

	i, out := newTestInterface(t, "slow task", agent)

	require.NoError(t, i.Run(context.Background()))

	assert.Equal(t, []string{"slow task"}, agent.tasks)
	assert.Contains(t, out.String(), "did not complete within the step budget")
	assert.Contains(t, out.String(), "1. Waited for 5s")
}

func TestRun_InterruptCancelsOnlyTheRunningTask(t *testing.T) {
	var i *Interface

	agent := &stubAgent{
		result: func(ctx context.Context, task string) (*entity.Task, error) {
			if task != "long task" {
				return &entity.Task{Status: entity.TaskStatusCompleted, Result: "quick"}, nil
			}

			i.signals <- os.Interrupt
			<-ctx.Done()

			return &entity.Task{Status: entity.TaskStatusCancelled}, ctx.Err()
		},
	}

	i, out := newTestInterface(t, "long task\nquick task\n", agent)

	require.NoError(t, i.Run(context.Background()))

	assert.Equal(t, []string{"long task", "quick task"}, agent.tasks)
	assert.Contains(t, out.String(), "stopping task")
	assert.Contains(t, out.String(), "Task cancelled")
	assert.Contains(t, out.String(), "Answer: quick")
}

func TestPrintResult_Failure(t *testing.T) {
	i, out := newTestInterface(t, "", &stubAgent{})

	i.printResult(nil, errors.New("launch failed"))
	assert.Contains(t, out.String(), "Task failed: launch failed")

	out.Reset()
	i.printResult(nil, apperr.WrapWithReason("Execute", apperr.CodeBrowserNotReady, errors.New("no chromium"), "launch_failed"))
	assert.Contains(t, out.String(), "Task failed (launch_failed): Execute: no chromium")

	out.Reset()
	i.printResult(&entity.Task{Status: entity.TaskStatusFailed, Error: "too many model errors"}, errors.New("x"))
	assert.Contains(t, out.String(), "Task failed: too many model errors")
}
