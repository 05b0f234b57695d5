package worker

import (
	"context"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"segflow/internal/config"
)

// Module wires the asynq client, server, periodic task manager and
// handlers into the fx graph.
var Module = fx.Module("worker",
	fx.Provide(
		NewHandler,
		newAsynqClient,
	),
	fx.Invoke(runServer, runPeriodicManager),
)

func newAsynqClient(cfg *config.Config) *asynq.Client {
	return asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func runServer(lc fx.Lifecycle, cfg *config.Config, handler *Handler, log *zap.Logger) {
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB},
		asynq.Config{
			Concurrency: 10,
			Queues:      map[string]int{"default": 1},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error("asynq task permanently failed", zap.String("task_type", task.Type()), zap.Error(err))
			}),
		},
	)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := server.Run(handler.Mux()); err != nil {
					log.Error("asynq server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			server.Shutdown()
			return nil
		},
	})
}

func runPeriodicManager(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) error {
	manager, err := NewPeriodicTaskManager(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, cfg.Flow.TickInterval)
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := manager.Run(); err != nil {
					log.Error("periodic task manager stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			manager.Shutdown()
			return nil
		},
	})
	return nil
}
