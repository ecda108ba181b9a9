package console

import (
	"browser-agent/internal/config"
	"browser-agent/internal/entity"
	"browser-agent/internal/usecase"
	"browser-agent/pkg/apperr"
	"browser-agent/pkg/logg"
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const separator = "--------------------------------------------------------"

type Interface struct {
	config  *config.Config
	logger  *zap.Logger
	usecase *usecase.Service
	in      io.Reader
	out     io.Writer
	signals chan os.Signal
}

type Params struct {
	fx.In

	Config  *config.Config
	Logger  *zap.Logger
	Usecase *usecase.Service
}

func NewInterface(params Params) *Interface {
	return &Interface{
		config:  params.Config,
		logger:  params.Logger.With(zap.String(logg.Layer, "Console")),
		usecase: params.Usecase,
		in:      os.Stdin,
		out:     os.Stdout,
		signals: make(chan os.Signal, 1),
	}
}

// Run reads tasks line by line until exit, EOF, an interrupt at the prompt, or
// ctx is done. An interrupt while a task runs cancels only that task.
func (i *Interface) Run(ctx context.Context) error {
	signal.Notify(i.signals, os.Interrupt)
	defer signal.Stop(i.signals)

	done := make(chan struct{})
	defer close(done)

	lines := i.readLines(done)

	i.printBanner()
	i.printHelp()

	for {
		fmt.Fprint(i.out, "\n> ")

		select {
		case <-ctx.Done():
			return nil
		case <-i.signals:
			fmt.Fprintln(i.out, "\nInterrupted, exiting.")

			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}

			if exit := i.handleCommand(ctx, strings.TrimSpace(line)); exit {
				fmt.Fprintln(i.out, "Shutting down...")

				return nil
			}
		}
	}
}

func (i *Interface) readLines(done <-chan struct{}) <-chan string {
	lines := make(chan string)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(i.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}

		if err := scanner.Err(); err != nil {
			i.logger.Warn("Failed to read input", zap.Error(err))
		}
	}()

	return lines
}

func (i *Interface) handleCommand(ctx context.Context, input string) (exit bool) {
	switch input {
	case "":
		return false
	case "help", "h":
		i.printHelp()

		return false
	case "exit", "quit", "q":
		return true
	default:
		i.executeTask(ctx, input)

		return false
	}
}

func (i *Interface) executeTask(ctx context.Context, taskDescription string) {
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-i.signals:
			fmt.Fprintln(i.out, "\nInterrupt received, stopping task...")
			cancel()
		case <-taskCtx.Done():
		}
	}()

	fmt.Fprintf(i.out, "\nStarting task: %s\n%s\n", taskDescription, separator)

	task, err := i.usecase.Agent.Execute(taskCtx, taskDescription, entity.RunOptions{})

	fmt.Fprintln(i.out, separator)
	i.printResult(task, err)
}

func (i *Interface) printResult(task *entity.Task, err error) {
	if err != nil {
		i.logger.Error("Task failed",
			zap.String("code", apperr.CodeOf(err)),
			zap.String("reason", apperr.ReasonOf(err)),
			zap.Error(err))
	}

	if task == nil {
		if reason := apperr.ReasonOf(err); reason != "" {
			fmt.Fprintf(i.out, "Task failed (%s): %v\n", reason, err)

			return
		}

		fmt.Fprintf(i.out, "Task failed: %v\n", err)

		return
	}

	switch task.Status {
	case entity.TaskStatusCompleted:
		fmt.Fprintf(i.out, "Task completed.\n\nAnswer: %s\nSteps taken: %d\n", task.Result, len(task.Steps))
	case entity.TaskStatusStepLimitExceeded:
		fmt.Fprintf(i.out, "Task did not complete within the step budget (%d steps, %d recorded).\n\n%s\n", task.MaxSteps, len(task.Steps), task.History)
	case entity.TaskStatusCancelled:
		fmt.Fprintf(i.out, "Task cancelled (%d steps recorded).\n", len(task.Steps))
	default:
		fmt.Fprintf(i.out, "Task failed: %s\n", task.Error)
	}
}

func (i *Interface) printBanner() {
	fmt.Fprintf(i.out, "\nBrowser Agent (%s, %s)\nStart page: %s\n",
		i.config.AIConfig.Provider, i.config.BrowserConfig.Driver, i.config.AgentConfig.StartURL)
}

func (i *Interface) printHelp() {
	help := `
Available commands:
  help, h       - Show this help message
  exit, quit, q - Exit the application

Type a task in natural language to start it, for example:
  - What is the population of Lisbon according to Wikipedia?
  - Find the release date of the latest Go version

Press Ctrl+C while a task runs to cancel it.
`
	fmt.Fprintln(i.out, help)
}
