package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/spi-u/gpt-bot/internal/logger"
	"github.com/spi-u/gpt-bot/internal/types"
)

type UserRepo interface {
	Create(ctx context.Context, telegramID, contesterID int64, username string) (*types.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*types.User, error)
	UpdateContestID(ctx context.Context, userID int64, contestID *int64) error
	UpdateProblem(ctx context.Context, userID int64, problemID *int64, problemSlug *string) error
	UpdateLastStep(ctx context.Context, userID int64, step types.Step) error
	UpdateRole(ctx context.Context, username string, role types.Role) (bool, error)
	SetLastGenerationNow(ctx context.Context, userID int64) error
	DecrementLeftGenerations(ctx context.Context, userID int64) error
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	return &userRepo{db: db, log: baseLog.With("repo", "UserRepo")}
}

func (r *userRepo) Create(ctx context.Context, telegramID, contesterID int64, username string) (*types.User, error) {
	user := &types.User{
		TelegramID:  telegramID,
		ContesterID: contesterID,
		Username:    username,
		LastStep:    types.StepAuthorization,
		Role:        types.RoleUser,
	}
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func (r *userRepo) GetByTelegramID(ctx context.Context, telegramID int64) (*types.User, error) {
	var user types.User
	err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) UpdateContestID(ctx context.Context, userID int64, contestID *int64) error {
	return r.db.WithContext(ctx).
		Model(&types.User{}).
		Where("id = ?", userID).
		Update("contest_id", contestID).Error
}

func (r *userRepo) UpdateProblem(ctx context.Context, userID int64, problemID *int64, problemSlug *string) error {
	return r.db.WithContext(ctx).
		Model(&types.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"problem_id":   problemID,
			"problem_slug": problemSlug,
		}).Error
}

func (r *userRepo) UpdateLastStep(ctx context.Context, userID int64, step types.Step) error {
	return r.db.WithContext(ctx).
		Model(&types.User{}).
		Where("id = ?", userID).
		Update("last_step", step).Error
}

func (r *userRepo) UpdateRole(ctx context.Context, username string, role types.Role) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&types.User{}).
		Where("username = ?", username).
		Update("role", role)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *userRepo) SetLastGenerationNow(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).
		Model(&types.User{}).
		Where("id = ?", userID).
		Update("last_generation_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
}

func (r *userRepo) DecrementLeftGenerations(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).
		Model(&types.User{}).
		Where("id = ?", userID).
		UpdateColumn("left_generations", gorm.Expr("left_generations - 1")).Error
}
