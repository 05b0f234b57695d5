// Package worker wires the FlowExecutor's periodic tick and the
// transactional-email handler onto the engine's asynq server.
package worker

import (
	"context"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"segflow/internal/flowexec"
	"segflow/internal/mailer"
)

// TaskFlowTick is the periodic task type driving one FlowExecutor.Tick.
const TaskFlowTick = "flow:tick"

// TickInterval is the default cron schedule for the flow tick.
const TickInterval = "@every 100ms"

// Handler dispatches asynq tasks to the engine components that own them.
type Handler struct {
	executor   *flowexec.Executor
	dispatcher *mailer.Dispatcher
	log        *zap.Logger
}

func NewHandler(executor *flowexec.Executor, dispatcher *mailer.Dispatcher, log *zap.Logger) *Handler {
	return &Handler{executor: executor, dispatcher: dispatcher, log: log}
}

// Mux builds the asynq handler mux for the engine's task types.
func (h *Handler) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskFlowTick, h.handleTick)
	mux.HandleFunc(mailer.TaskTransactionalEmail, h.dispatcher.HandleTransactionalTask)
	return mux
}

func (h *Handler) handleTick(ctx context.Context, _ *asynq.Task) error {
	if err := h.executor.Tick(ctx); err != nil {
		h.log.Error("flow tick failed", zap.Error(err))
		return err
	}
	return nil
}

// staticPeriodicConfigProvider supplies the flow tick as the manager's only
// periodic task config, following the corpus's convention of driving background
// work through asynq rather than a bare time.Ticker.
type staticPeriodicConfigProvider struct {
	interval string
}

func (p staticPeriodicConfigProvider) GetConfigs() ([]*asynq.PeriodicTaskConfig, error) {
	return []*asynq.PeriodicTaskConfig{
		{Cronspec: p.interval, Task: asynq.NewTask(TaskFlowTick, nil)},
	}, nil
}

// NewPeriodicTaskManager builds the asynq.PeriodicTaskManager that keeps
// TaskFlowTick enqueued on interval.
func NewPeriodicTaskManager(redisOpt asynq.RedisConnOpt, interval string) (*asynq.PeriodicTaskManager, error) {
	if interval == "" {
		interval = TickInterval
	}
	return asynq.NewPeriodicTaskManager(asynq.PeriodicTaskManagerOpts{
		RedisConnOpt:               redisOpt,
		PeriodicTaskConfigProvider: staticPeriodicConfigProvider{interval: interval},
	})
}
