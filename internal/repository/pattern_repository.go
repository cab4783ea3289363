package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"dayplanner/internal/calendar"
	"dayplanner/internal/model"
)

// PatternRepository handles CRUD for recurring patterns.
type PatternRepository struct {
	db *gorm.DB
}

func NewPatternRepository(db *gorm.DB) *PatternRepository {
	return &PatternRepository{db: db}
}

func (r *PatternRepository) Create(ctx context.Context, p *model.RecurringPattern) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return classify("create pattern", err)
	}
	return nil
}

func (r *PatternRepository) Save(ctx context.Context, p *model.RecurringPattern) error {
	if err := r.db.WithContext(ctx).Save(p).Error; err != nil {
		return classify(fmt.Sprintf("save pattern %d", p.ID), err)
	}
	return nil
}

func (r *PatternRepository) FindByID(ctx context.Context, id int64) (*model.RecurringPattern, error) {
	var p model.RecurringPattern
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, classify(fmt.Sprintf("find pattern %d", id), err)
	}
	return &p, nil
}

func (r *PatternRepository) ListByUser(ctx context.Context, userID int64) ([]*model.RecurringPattern, error) {
	var ps []*model.RecurringPattern
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&ps).Error; err != nil {
		return nil, classify("list patterns", err)
	}
	return ps, nil
}

// ListActiveOn returns patterns whose active range contains date, by id.
func (r *PatternRepository) ListActiveOn(ctx context.Context, userID int64, date calendar.Date) ([]*model.RecurringPattern, error) {
	return r.ListActiveBetween(ctx, userID, date, date)
}

// ListActiveBetween returns patterns whose active range overlaps [start, end], by id.
func (r *PatternRepository) ListActiveBetween(ctx context.Context, userID int64, start, end calendar.Date) ([]*model.RecurringPattern, error) {
	var ps []*model.RecurringPattern
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND start_date <= ? AND (end_date IS NULL OR end_date >= ?)", userID, end, start).
		Order("id").
		Find(&ps).Error; err != nil {
		return nil, classify("list active patterns", err)
	}
	return ps, nil
}

// Delete removes the pattern and its skip exceptions. Its tasks are kept
// and lose the link.
func (r *PatternRepository) Delete(ctx context.Context, p *model.RecurringPattern) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("recurring_pattern_id = ?", p.ID).Delete(&model.SkipException{}).Error; err != nil {
			return err
		}
		if err := NewTaskRepository(tx).Detach(ctx, p.ID); err != nil {
			return err
		}
		return tx.Delete(&model.RecurringPattern{}, p.ID).Error
	})
	return classify(fmt.Sprintf("delete pattern %d", p.ID), err)
}
