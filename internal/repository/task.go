package repository

import (
	"context"
	"errors"
	"time"

	"orderflow/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaskInterface defines the persistence contract for tasks.
type TaskInterface interface {
	Create(ctx context.Context, task *model.Task) error
	GetByID(ctx context.Context, id string) (*model.Task, error)
	GetByIDForUpdate(ctx context.Context, id string) (*model.Task, error)
	GetActiveByOrderID(ctx context.Context, orderID string) (*model.Task, error)
	ListByOrderID(ctx context.Context, orderID string) ([]model.Task, error)
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]model.Task, error)
	Save(ctx context.Context, task *model.Task) error
	DeleteByOrderID(ctx context.Context, orderID string) error
	WithTx(tx *gorm.DB) TaskInterface
}

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

// GetByIDForUpdate takes a row lock; only meaningful inside a transaction.
func (r *TaskRepository) GetByIDForUpdate(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&task, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

// GetActiveByOrderID returns the order's pending/running task, if any. Inside
// a transaction the row lock serializes concurrent task creation for the same
// order.
func (r *TaskRepository) GetActiveByOrderID(ctx context.Context, orderID string) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ? AND status IN ?", orderID,
			[]model.TaskStatus{model.TaskStatusPending, model.TaskStatusRunning}).
		First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) ListByOrderID(ctx context.Context, orderID string) ([]model.Task, error) {
	var tasks []model.Task
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&tasks).Error
	return tasks, err
}

// ListStale returns non-terminal tasks whose last update predates olderThan.
func (r *TaskRepository) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]model.Task, error) {
	var tasks []model.Task
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]model.TaskStatus{model.TaskStatusPending, model.TaskStatusRunning}, olderThan).
		Limit(limit).Order("updated_at ASC").
		Find(&tasks).Error
	return tasks, err
}

func (r *TaskRepository) Save(ctx context.Context, task *model.Task) error {
	return r.db.WithContext(ctx).Save(task).Error
}

func (r *TaskRepository) DeleteByOrderID(ctx context.Context, orderID string) error {
	return r.db.WithContext(ctx).Delete(&model.Task{}, "order_id = ?", orderID).Error
}

func (r *TaskRepository) WithTx(tx *gorm.DB) TaskInterface {
	return &TaskRepository{db: tx}
}
