package bootstrap

import (
	"browser-agent/internal/entity"
	"browser-agent/internal/usecase"
	"context"

	"go.uber.org/fx"
)

// RunTask executes a single task and returns its final record.
func RunTask(ctx context.Context, description string, opts entity.RunOptions) (*entity.Task, error) {
	var (
		service *usecase.Service
		task    *entity.Task
	)

	app := NewApp(fx.Populate(&service))

	err := runApp(ctx, app, func(ctx context.Context) error {
		var err error
		task, err = service.Agent.Execute(ctx, description, opts)

		return err
	})

	return task, err
}
