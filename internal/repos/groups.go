package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/spi-u/gpt-bot/internal/logger"
	"github.com/spi-u/gpt-bot/internal/types"
)

type GroupRepo interface {
	AddGroup(ctx context.Context, chatID int64) (*types.Group, error)
	GetByChatID(ctx context.Context, chatID int64) (*types.Group, error)
}

type groupRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGroupRepo(db *gorm.DB, baseLog *logger.Logger) GroupRepo {
	return &groupRepo{db: db, log: baseLog.With("repo", "GroupRepo")}
}

func (r *groupRepo) AddGroup(ctx context.Context, chatID int64) (*types.Group, error) {
	group := &types.Group{ChatID: chatID}
	if err := r.db.WithContext(ctx).Create(group).Error; err != nil {
		return nil, err
	}
	return group, nil
}

func (r *groupRepo) GetByChatID(ctx context.Context, chatID int64) (*types.Group, error) {
	var group types.Group
	err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}
