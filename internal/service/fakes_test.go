package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"orderflow/internal/aiclient"
	"orderflow/internal/metrics"
	"orderflow/internal/model"
	"orderflow/internal/repository"
	"orderflow/pkg/logger"

	"gorm.io/gorm"
)

func init() {
	logger.InitLogger("test")
}

// memTaskRepo is an in-memory TaskInterface. WithTx returns the repo itself,
// so services built with a nil db exercise the same code paths.
type memTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]model.Task

	createErr error
	saveErr   error
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{tasks: make(map[string]model.Task)}
}

func (r *memTaskRepo) Create(ctx context.Context, task *model.Task) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.ID] = *task
	return nil
}

func (r *memTaskRepo) GetByID(ctx context.Context, id string) (*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *memTaskRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Task, error) {
	return r.GetByID(ctx, id)
}

func (r *memTaskRepo) GetActiveByOrderID(ctx context.Context, orderID string) (*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if t.OrderID == orderID && t.Status.Active() {
			cp := t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memTaskRepo) ListByOrderID(ctx context.Context, orderID string) ([]model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Task
	for _, t := range r.tasks {
		if t.OrderID == orderID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memTaskRepo) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Task
	for _, t := range r.tasks {
		if t.Status.Active() && t.UpdatedAt.Before(olderThan) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memTaskRepo) Save(ctx context.Context, task *model.Task) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.ID] = *task
	return nil
}

func (r *memTaskRepo) DeleteByOrderID(ctx context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tasks {
		if t.OrderID == orderID {
			delete(r.tasks, id)
		}
	}
	return nil
}

func (r *memTaskRepo) WithTx(tx *gorm.DB) repository.TaskInterface { return r }

type memOrderRepo struct {
	mu     sync.Mutex
	orders map[string]model.Order
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[string]model.Order)}
}

func (r *memOrderRepo) Create(ctx context.Context, order *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = *order
	return nil
}

func (r *memOrderRepo) GetByID(ctx context.Context, id string) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r *memOrderRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *memOrderRepo) ListByUser(ctx context.Context, userID string, offset, limit int) ([]model.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []model.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			all = append(all, o)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (r *memOrderRepo) Save(ctx context.Context, order *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = *order
	return nil
}

func (r *memOrderRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.orders, id)
	return nil
}

func (r *memOrderRepo) PingContext(ctx context.Context) error { return nil }

func (r *memOrderRepo) WithTx(tx *gorm.DB) repository.OrderInterface { return r }

// staticResolver resolves every service id to one fixed config.
type staticResolver struct {
	cfg *repository.ServiceConfig
	err error
}

func (s *staticResolver) Resolve(ctx context.Context, serviceID string) (*repository.ServiceConfig, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.cfg != nil {
		return s.cfg, nil
	}
	return &repository.ServiceConfig{ServiceID: serviceID, BaseURL: "http://backend.test"}, nil
}

// scriptedBackend implements aiclient.Backend with per-call scripting and
// call counters.
type scriptedBackend struct {
	mu          sync.Mutex
	startCalls  int
	queryCalls  int
	stopCalls   int
	startFn     func(call int) (*aiclient.StartResult, error)
	queryFn     func(call int) (*aiclient.StatusResult, error)
	stopErr     error
	stoppedTask string
}

func (b *scriptedBackend) Start(ctx context.Context, cfg aiclient.Config, inputData string) (*aiclient.StartResult, error) {
	b.mu.Lock()
	b.startCalls++
	call := b.startCalls
	b.mu.Unlock()
	if b.startFn != nil {
		return b.startFn(call)
	}
	return &aiclient.StartResult{TaskID: "ext-task", ExecutionID: "ext-exec"}, nil
}

func (b *scriptedBackend) QueryStatus(ctx context.Context, cfg aiclient.Config, executionID string) (*aiclient.StatusResult, error) {
	b.mu.Lock()
	b.queryCalls++
	call := b.queryCalls
	b.mu.Unlock()
	if b.queryFn != nil {
		return b.queryFn(call)
	}
	return &aiclient.StatusResult{State: aiclient.StateRunning}, nil
}

func (b *scriptedBackend) Stop(ctx context.Context, cfg aiclient.Config, taskID string) error {
	b.mu.Lock()
	b.stopCalls++
	b.stoppedTask = taskID
	b.mu.Unlock()
	return b.stopErr
}

func newTestTaskService(repo *memTaskRepo) *TaskService {
	return NewTaskService(nil, repo, NopNotifier{}, metrics.NopObserver{})
}

func newTestOrderService(orders *memOrderRepo, tasks *memTaskRepo) *OrderService {
	return NewOrderService(nil, orders, tasks, NopNotifier{})
}
