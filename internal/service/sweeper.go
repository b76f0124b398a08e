package service

import (
	"context"
	"time"

	"orderflow/internal/metrics"
	"orderflow/internal/model"
	"orderflow/internal/repository"
	"orderflow/pkg/logger"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"
)

// Sweeper periodically reconciles non-terminal tasks nobody is polling
// anymore. An etcd mutex keeps the sweep single-flight across instances.
type Sweeper struct {
	etcdClient *clientv3.Client
	tasks      *TaskService
	taskRepo   repository.TaskInterface
	reconciler *Reconciler
	observer   metrics.Observer

	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
}

type SweeperConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

func NewSweeper(etcdClient *clientv3.Client, tasks *TaskService, taskRepo repository.TaskInterface, reconciler *Reconciler, observer metrics.Observer, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Sweeper{
		etcdClient: etcdClient,
		tasks:      tasks,
		taskRepo:   taskRepo,
		reconciler: reconciler,
		observer:   observer,
		interval:   cfg.Interval,
		staleAfter: cfg.StaleAfter,
		batchSize:  cfg.BatchSize,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	session, err := concurrency.NewSession(s.etcdClient, concurrency.WithTTL(10))
	if err != nil {
		logger.Error("failed to create etcd concurrency session", zap.Error(err))
		return
	}
	defer session.Close()

	mutex := concurrency.NewMutex(session, "/orderflow/locks/sweeper")

	logger.Info("task sweeper started",
		zap.Duration("interval", s.interval),
		zap.Duration("stale_after", s.staleAfter))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := mutex.Lock(lockCtx)
			cancel()

			if err != nil {
				if err == context.DeadlineExceeded {
					logger.Debug("sweep skipped, another instance holds the lock")
				} else {
					logger.Error("failed to acquire sweep lock", zap.Error(err))
				}
				continue
			}

			s.sweep(ctx)

			if err := mutex.Unlock(context.Background()); err != nil {
				logger.Warn("failed to release sweep lock", zap.Error(err))
			}
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.staleAfter)
	stale, err := s.taskRepo.ListStale(ctx, cutoff, s.batchSize)
	if err != nil {
		logger.Error("sweep: failed to list stale tasks", zap.Error(err))
		return
	}
	if len(stale) == 0 {
		return
	}

	logger.Info("sweep: reconciling stale tasks", zap.Int("count", len(stale)))
	s.observer.SweepRun(len(stale))

	for i := range stale {
		task := &stale[i]

		// A pending task with no execution handle was orphaned mid-dispatch;
		// the backend knows nothing about it, so fail it to unwedge the order.
		if task.Status == model.TaskStatusPending && task.ExternalExecutionID == "" {
			if _, err := s.tasks.Transition(ctx, task, model.TaskStatusFailed, TransitionFields{
				ErrorMessage: "dispatch abandoned",
			}); err != nil {
				logger.Warn("sweep: failed to abandon task",
					zap.String("task_id", task.ID),
					zap.Error(err))
			}
			continue
		}

		if _, err := s.reconciler.Sync(ctx, task); err != nil {
			logger.Warn("sweep: sync failed",
				zap.String("task_id", task.ID),
				zap.Error(err))
		}
	}
}
