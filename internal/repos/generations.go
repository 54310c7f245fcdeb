package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/spi-u/gpt-bot/internal/logger"
	"github.com/spi-u/gpt-bot/internal/types"
)

// GenerationRepo persists generation records. Every read-oriented method
// first runs the lazy expiry sweep so a crashed pipeline never blocks its
// fingerprint forever: the next reader repairs the state.
type GenerationRepo interface {
	Add(ctx context.Context, gen *types.Generation) (*types.Generation, error)
	FindByFingerprint(ctx context.Context, problemID int64, level int, solutionID int64) ([]*types.Generation, error)
	GetGeneration(ctx context.Context, id int64) (*types.Generation, error)
	SetStatusAndResult(ctx context.Context, id int64, status types.GenerationStatus, input, output string) error
	DialogChain(ctx context.Context, id int64) ([]types.ChatMessage, error)
	AddVote(ctx context.Context, id int64, isUpVote bool) error
	TopForProblem(ctx context.Context, problemID int64, limit int) ([]*types.Generation, error)
	FailOutdated(ctx context.Context) error
	RemoveGeneration(ctx context.Context, id int64) error
}

type generationRepo struct {
	db         *gorm.DB
	log        *logger.Logger
	staleAfter time.Duration
}

func NewGenerationRepo(db *gorm.DB, staleAfter time.Duration, baseLog *logger.Logger) GenerationRepo {
	return &generationRepo{
		db:         db,
		log:        baseLog.With("repo", "GenerationRepo"),
		staleAfter: staleAfter,
	}
}

func (r *generationRepo) Add(ctx context.Context, gen *types.Generation) (*types.Generation, error) {
	if err := r.db.WithContext(ctx).Create(gen).Error; err != nil {
		return nil, err
	}
	return gen, nil
}

func (r *generationRepo) FindByFingerprint(ctx context.Context, problemID int64, level int, solutionID int64) ([]*types.Generation, error) {
	if err := r.FailOutdated(ctx); err != nil {
		return nil, err
	}

	var results []*types.Generation
	if err := r.db.WithContext(ctx).
		Where("problem_id = ? AND generation_level = ? AND solution_id = ? AND status <> ?",
			problemID, level, solutionID, types.StatusFailed).
		Order("id DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetGeneration returns the record in whatever status it has, or nil when
// the id is unknown. Terminal FAILED state is visible here so waiters can
// distinguish a failed generation from a missing one.
func (r *generationRepo) GetGeneration(ctx context.Context, id int64) (*types.Generation, error) {
	if err := r.FailOutdated(ctx); err != nil {
		return nil, err
	}

	var gen types.Generation
	err := r.db.WithContext(ctx).First(&gen, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &gen, nil
}

// SetStatusAndResult writes the terminal status. The IN_PROGRESS guard makes
// the write idempotent: a record that already reached READY or FAILED is
// never overwritten, even by a slow pipeline racing the expiry sweep.
func (r *generationRepo) SetStatusAndResult(ctx context.Context, id int64, status types.GenerationStatus, input, output string) error {
	if err := r.FailOutdated(ctx); err != nil {
		return err
	}

	return r.db.WithContext(ctx).
		Model(&types.Generation{}).
		Where("id = ? AND status = ?", id, types.StatusInProgress).
		Updates(map[string]interface{}{
			"status": status,
			"input":  input,
			"output": output,
		}).Error
}

// DialogChain reconstructs the conversation leading to the given generation,
// oldest first, including the node's own input/output pair.
func (r *generationRepo) DialogChain(ctx context.Context, id int64) ([]types.ChatMessage, error) {
	gen, err := r.GetGeneration(ctx, id)
	if err != nil {
		return nil, err
	}
	if gen == nil {
		return nil, nil
	}

	// The chain from a node at level L has at most L+1 hops; anything deeper
	// means a broken link.
	maxHops := gen.GenerationLevel + 1

	var dialog []types.ChatMessage
	for hops := 0; gen != nil; hops++ {
		if hops > maxHops {
			return nil, fmt.Errorf("dialog chain from generation %d exceeds %d hops", id, maxHops)
		}
		dialog = append([]types.ChatMessage{
			{Text: gen.Input, IsUser: true},
			{Text: gen.Output, IsUser: false},
		}, dialog...)

		if gen.PreviousGenerationID == 0 {
			break
		}
		prev, err := r.GetGeneration(ctx, gen.PreviousGenerationID)
		if err != nil {
			return nil, err
		}
		gen = prev
	}
	return dialog, nil
}

func (r *generationRepo) AddVote(ctx context.Context, id int64, isUpVote bool) error {
	column := "down_votes"
	if isUpVote {
		column = "up_votes"
	}
	return r.db.WithContext(ctx).
		Model(&types.Generation{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + 1")).Error
}

// TopForProblem returns the best-voted READY root hints for a problem,
// deduplicated by input, newest-vote-heavy first. Used to offer previously
// asked follow-up questions as buttons.
func (r *generationRepo) TopForProblem(ctx context.Context, problemID int64, limit int) ([]*types.Generation, error) {
	if err := r.FailOutdated(ctx); err != nil {
		return nil, err
	}

	var rows []*types.Generation
	if err := r.db.WithContext(ctx).
		Where("problem_id = ? AND solution_id = 0 AND generation_level = 1 AND status = ?",
			problemID, types.StatusReady).
		Order("(up_votes - down_votes) DESC, up_votes DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rows))
	top := make([]*types.Generation, 0, limit)
	for _, gen := range rows {
		if seen[gen.Input] {
			continue
		}
		seen[gen.Input] = true
		top = append(top, gen)
		if len(top) >= limit {
			break
		}
	}
	return top, nil
}

// FailOutdated is the expiry sweep: IN_PROGRESS records older than the
// staleness threshold are forcibly failed.
func (r *generationRepo) FailOutdated(ctx context.Context) error {
	cutoff := time.Now().Add(-r.staleAfter)
	res := r.db.WithContext(ctx).
		Model(&types.Generation{}).
		Where("status = ? AND created_at < ?", types.StatusInProgress, cutoff).
		Update("status", types.StatusFailed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		r.log.Warn("Expired stale generations", "count", res.RowsAffected)
	}
	return nil
}

func (r *generationRepo) RemoveGeneration(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&types.Generation{}, id).Error
}
