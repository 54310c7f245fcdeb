package repos

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/spi-u/gpt-bot/internal/logger"
	"github.com/spi-u/gpt-bot/internal/types"
)

// ErrTemplateNotFound is returned when no template with the given name exists.
var ErrTemplateNotFound = errors.New("template not found")

type TemplateRepo interface {
	GetTemplate(ctx context.Context, name string) (*types.Template, error)
	UpsertTemplate(ctx context.Context, name, template string) error
}

type templateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTemplateRepo(db *gorm.DB, baseLog *logger.Logger) TemplateRepo {
	return &templateRepo{db: db, log: baseLog.With("repo", "TemplateRepo")}
}

func (r *templateRepo) GetTemplate(ctx context.Context, name string) (*types.Template, error) {
	var tpl types.Template
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&tpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (r *templateRepo) UpsertTemplate(ctx context.Context, name, template string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"template"}),
		}).
		Create(&types.Template{Name: name, Template: template}).Error
}
