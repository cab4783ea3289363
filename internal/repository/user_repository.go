package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"dayplanner/internal/model"
)

// UserRepository handles CRUD for users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// TelegramProfile is the subset of a Telegram account copied onto the user.
type TelegramProfile struct {
	TelegramID int64
	FirstName  string
	LastName   string
	Username   string
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return classify("create user", err)
	}
	return nil
}

// UpsertFromTelegram finds or creates a user based on TelegramID and updates basic profile info.
// New users get zone as their timezone.
func (r *UserRepository) UpsertFromTelegram(ctx context.Context, p TelegramProfile, zone string) (*model.User, error) {
	var user model.User
	db := r.db.WithContext(ctx)
	err := db.Where("telegram_id = ?", p.TelegramID).First(&user).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"first_name": p.FirstName,
			"last_name":  p.LastName,
			"username":   p.Username,
		}
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			return nil, classify("update user", err)
		}
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		id := p.TelegramID
		user = model.User{
			TelegramID: &id,
			FirstName:  p.FirstName,
			LastName:   p.LastName,
			Username:   p.Username,
			Timezone:   zone,
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, classify("create user", err)
		}
		return &user, nil
	default:
		return nil, classify("find user", err)
	}
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, classify(fmt.Sprintf("find user %d", id), err)
	}
	return &user, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, classify("find user by email", err)
	}
	return &user, nil
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, classify("find user by telegram id", err)
	}
	return &user, nil
}

func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, classify("list users", err)
	}
	return users, nil
}

func (r *UserRepository) UpdateTimezone(ctx context.Context, id int64, zone string) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update("timezone", zone)
	if res.Error != nil {
		return classify("update timezone", res.Error)
	}
	if res.RowsAffected == 0 {
		return classify("update timezone", gorm.ErrRecordNotFound)
	}
	return nil
}

// MarkRolledOver records the instant of the user's last completed rollover.
func (r *UserRepository) MarkRolledOver(ctx context.Context, id int64, at time.Time) error {
	if err := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
		Update("last_rollover_at", at).Error; err != nil {
		return classify("mark rollover", err)
	}
	return nil
}

// Delete removes the user together with their tasks, patterns and skip
// exceptions.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		patterns := tx.Model(&model.RecurringPattern{}).Select("id").Where("user_id = ?", id)
		if err := tx.Where("recurring_pattern_id IN (?)", patterns).Delete(&model.SkipException{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&model.Task{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&model.RecurringPattern{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.User{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return classify("delete user", err)
}
