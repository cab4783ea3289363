package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"dayplanner/internal/calendar"
	"dayplanner/internal/model"
)

// TaskRepository handles CRUD for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return classify("create task", err)
	}
	return nil
}

func (r *TaskRepository) Save(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return classify(fmt.Sprintf("save task %d", task.ID), err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, id int64) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return nil, classify(fmt.Sprintf("find task %d", id), err)
	}
	return &task, nil
}

// ListByDate returns the user's tasks assigned to date in display order.
func (r *TaskRepository) ListByDate(ctx context.Context, userID int64, date calendar.Date) ([]*model.Task, error) {
	var tasks []*model.Task
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND assigned_date = ?", userID, date).
		Order("position, id").
		Find(&tasks).Error; err != nil {
		return nil, classify("list tasks", err)
	}
	return tasks, nil
}

// ListBetween returns tasks assigned within [start, end], grouped by date.
func (r *TaskRepository) ListBetween(ctx context.Context, userID int64, start, end calendar.Date) ([]*model.Task, error) {
	var tasks []*model.Task
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND assigned_date BETWEEN ? AND ?", userID, start, end).
		Order("assigned_date, position, id").
		Find(&tasks).Error; err != nil {
		return nil, classify("list tasks in range", err)
	}
	return tasks, nil
}

// FindIncompleteBefore returns incomplete tasks assigned before date, most
// recent date first and by position within a date.
func (r *TaskRepository) FindIncompleteBefore(ctx context.Context, userID int64, date calendar.Date) ([]*model.Task, error) {
	var tasks []*model.Task
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND assigned_date < ? AND is_completed = ?", userID, date, false).
		Order("assigned_date DESC, position, id").
		Find(&tasks).Error; err != nil {
		return nil, classify("list overdue tasks", err)
	}
	return tasks, nil
}

// FindInstance returns the stored task for a pattern occurrence, or nil when
// there is none.
func (r *TaskRepository) FindInstance(ctx context.Context, patternID int64, instanceDate calendar.Date) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).
		Where("recurring_pattern_id = ? AND instance_date = ?", patternID, instanceDate).
		Order("id").
		First(&task).Error
	switch {
	case err == nil:
		return &task, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, classify("find instance", err)
	}
}

// InstancesBetween lists which pattern occurrences in [start, end] already
// have a stored task, wherever that task is assigned now.
func (r *TaskRepository) InstancesBetween(ctx context.Context, userID int64, start, end calendar.Date) (model.InstanceSet, error) {
	var rows []struct {
		RecurringPatternID int64
		InstanceDate       calendar.Date
	}
	if err := r.db.WithContext(ctx).Model(&model.Task{}).
		Select("recurring_pattern_id, instance_date").
		Where("user_id = ? AND recurring_pattern_id IS NOT NULL AND instance_date BETWEEN ? AND ?", userID, start, end).
		Scan(&rows).Error; err != nil {
		return nil, classify("list instances", err)
	}
	set := make(model.InstanceSet, len(rows))
	for _, row := range rows {
		set.Add(row.RecurringPatternID, row.InstanceDate)
	}
	return set, nil
}

// FindFutureIncomplete returns incomplete instances of the pattern whose
// instance date is after the given date.
func (r *TaskRepository) FindFutureIncomplete(ctx context.Context, patternID int64, after calendar.Date) ([]*model.Task, error) {
	var tasks []*model.Task
	if err := r.db.WithContext(ctx).
		Where("recurring_pattern_id = ? AND instance_date > ? AND is_completed = ?", patternID, after, false).
		Order("instance_date, id").
		Find(&tasks).Error; err != nil {
		return nil, classify("list future instances", err)
	}
	return tasks, nil
}

// ShiftPositions moves every task at or after position one slot down.
func (r *TaskRepository) ShiftPositions(ctx context.Context, userID int64, date calendar.Date, from int) error {
	if err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ? AND assigned_date = ? AND position >= ?", userID, date, from).
		UpdateColumn("position", gorm.Expr("position + 1")).Error; err != nil {
		return classify("shift positions", err)
	}
	return nil
}

// Detach clears the pattern link on every task of the pattern. The tasks
// stay as orphaned instances.
func (r *TaskRepository) Detach(ctx context.Context, patternID int64) error {
	if err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("recurring_pattern_id = ?", patternID).
		UpdateColumn("recurring_pattern_id", nil).Error; err != nil {
		return classify("detach tasks", err)
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Delete(&model.Task{}, task.ID).Error; err != nil {
		return classify(fmt.Sprintf("delete task %d", task.ID), err)
	}
	return nil
}

func (r *TaskRepository) DeleteAll(ctx context.Context, tasks []*model.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&model.Task{}).Error; err != nil {
		return classify("delete tasks", err)
	}
	return nil
}

// CountIncomplete returns the number of open tasks on date.
func (r *TaskRepository) CountIncomplete(ctx context.Context, userID int64, date calendar.Date) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ? AND assigned_date = ? AND is_completed = ?", userID, date, false).
		Count(&n).Error; err != nil {
		return 0, classify("count tasks", err)
	}
	return n, nil
}
