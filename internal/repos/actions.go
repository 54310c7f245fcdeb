package repos

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/spi-u/gpt-bot/internal/logger"
	"github.com/spi-u/gpt-bot/internal/types"
)

type ActionRepo interface {
	LogAction(ctx context.Context, userID int64, actionType types.ActionType, details interface{}) error
	LastByUserAndType(ctx context.Context, userID int64, actionType types.ActionType) (*types.Action, error)
}

type actionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewActionRepo(db *gorm.DB, baseLog *logger.Logger) ActionRepo {
	return &actionRepo{db: db, log: baseLog.With("repo", "ActionRepo")}
}

func (r *actionRepo) LogAction(ctx context.Context, userID int64, actionType types.ActionType, details interface{}) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&types.Action{
		UserID:    userID,
		Type:      actionType,
		Details:   datatypes.JSON(payload),
		Timestamp: time.Now(),
	}).Error
}

func (r *actionRepo) LastByUserAndType(ctx context.Context, userID int64, actionType types.ActionType) (*types.Action, error) {
	var action types.Action
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND type = ?", userID, actionType).
		Order("timestamp DESC, id DESC").
		First(&action).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &action, nil
}
