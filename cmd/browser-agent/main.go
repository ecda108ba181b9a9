package main

import (
	"browser-agent/internal/bootstrap"
	"browser-agent/internal/entity"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "browser-agent",
		Short: "Drive a web browser with a vision model to complete a task",
		Long: `browser-agent opens a browser on the start page, shows the model a labeled
screenshot of every page and carries out the action it picks until it answers
or runs out of steps.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newRunCmd(), newConsoleCmd())

	return rootCmd
}

func newRunCmd() *cobra.Command {
	var maxSteps int

	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run a single task and print the answer",
		Example: `  browser-agent run "What is the capital of Australia?"
  browser-agent run --max-steps 30 "Find the latest Go release notes"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxSteps < 0 {
				return errors.New("--max-steps must not be negative")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			task, err := bootstrap.RunTask(ctx, args[0], entity.RunOptions{MaxSteps: maxSteps})

			return report(cmd, task, err)
		},
	}

	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "Step budget for this run (default from AGENT_MAX_STEPS)")

	return cmd
}

func newConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Start the interactive console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Interrupts are handled by the console itself.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
			defer stop()

			return bootstrap.RunConsole(ctx)
		},
	}
}

func report(cmd *cobra.Command, task *entity.Task, err error) error {
	out := cmd.OutOrStdout()

	if task == nil {
		return err
	}

	switch task.Status {
	case entity.TaskStatusCompleted:
		fmt.Fprintln(out, task.Result)

		return nil
	case entity.TaskStatusStepLimitExceeded:
		fmt.Fprintf(out, "Task did not complete within %d steps.\n\n%s\n", task.MaxSteps, task.History)

		return errors.New(task.Error)
	case entity.TaskStatusCancelled:
		return fmt.Errorf("task cancelled: %w", context.Canceled)
	default:
		if err != nil {
			return err
		}

		return errors.New(task.Error)
	}
}
