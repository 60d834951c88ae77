package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Worker polls the job store and hands due jobs to the dispatcher. Run
// several workers against the same store for throughput; ClaimDue keeps
// them from executing the same job twice.
type Worker struct {
	dispatcher *Dispatcher
	interval   time.Duration
	logger     *zap.Logger
}

// NewWorker constructs a worker.
func NewWorker(dispatcher *Dispatcher, interval time.Duration, logger *zap.Logger) *Worker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{dispatcher: dispatcher, interval: interval, logger: logger}
}

// Start runs the poll loop until the context is cancelled. When a pass
// executes a full claim it polls again immediately to drain the backlog.
func (w *Worker) Start(ctx context.Context) {
	if w == nil || w.dispatcher == nil {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				executed, err := w.dispatcher.Dispatch(ctx)
				if err != nil {
					w.logger.Error("dispatch pass failed", zap.Error(err))
					break
				}
				if executed < w.dispatcher.config.ClaimLimit || executed == 0 {
					break
				}
			}
		}
	}
}
