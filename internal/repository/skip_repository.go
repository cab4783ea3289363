package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dayplanner/internal/calendar"
	"dayplanner/internal/model"
)

// SkipRepository stores skip exceptions.
type SkipRepository struct {
	db *gorm.DB
}

func NewSkipRepository(db *gorm.DB) *SkipRepository {
	return &SkipRepository{db: db}
}

// Add records a skip. Adding the same (pattern, date) twice is a no-op.
func (r *SkipRepository) Add(ctx context.Context, patternID int64, date calendar.Date) error {
	skip := model.SkipException{RecurringPatternID: patternID, SkipDate: date}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&skip).Error; err != nil {
		return classify("add skip", err)
	}
	return nil
}

func (r *SkipRepository) Exists(ctx context.Context, patternID int64, date calendar.Date) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.SkipException{}).
		Where("recurring_pattern_id = ? AND skip_date = ?", patternID, date).
		Count(&n).Error; err != nil {
		return false, classify("check skip", err)
	}
	return n > 0, nil
}

// ListBetween returns the skips of the given patterns within [start, end].
func (r *SkipRepository) ListBetween(ctx context.Context, patternIDs []int64, start, end calendar.Date) (model.InstanceSet, error) {
	set := make(model.InstanceSet)
	if len(patternIDs) == 0 {
		return set, nil
	}
	var skips []model.SkipException
	if err := r.db.WithContext(ctx).
		Where("recurring_pattern_id IN ? AND skip_date BETWEEN ? AND ?", patternIDs, start, end).
		Find(&skips).Error; err != nil {
		return nil, classify("list skips", err)
	}
	for _, s := range skips {
		set.Add(s.RecurringPatternID, s.SkipDate)
	}
	return set, nil
}

func (r *SkipRepository) ListByPattern(ctx context.Context, patternID int64) ([]model.SkipException, error) {
	var skips []model.SkipException
	if err := r.db.WithContext(ctx).Where("recurring_pattern_id = ?", patternID).
		Order("skip_date").Find(&skips).Error; err != nil {
		return nil, classify("list skips", err)
	}
	return skips, nil
}
