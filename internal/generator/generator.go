// Package generator is the generation orchestrator: it deduplicates
// concurrent requests for the same logical generation, runs the expensive
// render/complete pipeline in the background, and lets any caller wait for
// the result through the persisted record.
package generator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cbroglie/mustache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/spi-u/gpt-bot/internal/logger"
	"github.com/spi-u/gpt-bot/internal/types"
)

var (
	ErrGenerationNotFound = errors.New("generation not found")
	ErrGenerationFailed   = errors.New("generation failed")
)

var tracer = otel.Tracer("github.com/spi-u/gpt-bot/internal/generator")

// Task describes one generation request. (ProblemID, GenerationLevel,
// SolutionID) is the dedup fingerprint; PreviousGenerationID chains
// follow-up turns to their conversation root (0 = root).
type Task struct {
	PreviousGenerationID int64
	ProblemID            int64
	SolutionID           int64
	GenerationLevel      int
	TemplateName         string
	TemplateVariables    types.TemplateVariables
}

// Result is what submission returns: the record to wait on, and whether a
// new pipeline was actually started.
type Result struct {
	GenerationID int64
	IsNew        bool
}

type TemplatesRepository interface {
	GetTemplate(ctx context.Context, name string) (*types.Template, error)
}

type GenerationRepository interface {
	Add(ctx context.Context, gen *types.Generation) (*types.Generation, error)
	FindByFingerprint(ctx context.Context, problemID int64, level int, solutionID int64) ([]*types.Generation, error)
	GetGeneration(ctx context.Context, id int64) (*types.Generation, error)
	SetStatusAndResult(ctx context.Context, id int64, status types.GenerationStatus, input, output string) error
	DialogChain(ctx context.Context, id int64) ([]types.ChatMessage, error)
}

type ChatClient interface {
	Chat(ctx context.Context, messages []types.ChatMessage) (string, error)
}

type Generator struct {
	// mu serializes the check-then-insert step across all fingerprints.
	// One global lock keeps the dedup invariant trivially correct; the
	// pipeline itself runs outside it, so in-flight generations are not
	// serialized.
	mu sync.Mutex

	templates   TemplatesRepository
	generations GenerationRepository
	chat        ChatClient
	log         *logger.Logger

	pollInterval time.Duration
}

func New(templates TemplatesRepository, generations GenerationRepository, chat ChatClient, pollInterval time.Duration, baseLog *logger.Logger) *Generator {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	return &Generator{
		templates:    templates,
		generations:  generations,
		chat:         chat,
		log:          baseLog.With("service", "Generator"),
		pollInterval: pollInterval,
	}
}

// Submit deduplicates the task against existing non-failed records for its
// fingerprint and starts a new background pipeline only when none exists.
// With allowOnlyExisting set it never starts one: it either attaches to an
// existing record or fails with ErrGenerationNotFound. Used by callers that
// are rate limited and must not spend a generation slot.
func (g *Generator) Submit(ctx context.Context, task Task, allowOnlyExisting bool) (Result, error) {
	return g.createTask(ctx, task, allowOnlyExisting, false)
}

// Regenerate replays a stored generation as a brand-new record. Creation is
// forced: the new record never coalesces with the one it regenerates from,
// even though they share a fingerprint.
func (g *Generator) Regenerate(ctx context.Context, generationID int64, allowOnlyExisting bool) (Result, error) {
	gen, err := g.generations.GetGeneration(ctx, generationID)
	if err != nil {
		return Result{}, err
	}
	if gen == nil {
		return Result{}, ErrGenerationNotFound
	}

	task := Task{
		PreviousGenerationID: gen.PreviousGenerationID,
		ProblemID:            gen.ProblemID,
		SolutionID:           gen.SolutionID,
		GenerationLevel:      gen.GenerationLevel,
		TemplateName:         gen.TemplateName,
		TemplateVariables:    gen.TemplateVariables.Data(),
	}
	// Creation is forced, so allowOnlyExisting has no lookup to act on; it
	// is accepted for interface symmetry with Submit.
	return g.createTask(ctx, task, allowOnlyExisting, true)
}

func (g *Generator) createTask(ctx context.Context, task Task, allowOnlyExisting, force bool) (Result, error) {
	gen, res, err := g.checkAndInsert(ctx, task, allowOnlyExisting, force)
	if err != nil || gen == nil {
		return res, err
	}

	// Outside the lock: the pipeline's outcome reaches callers only through
	// the store, never through this goroutine.
	go g.runPipeline(gen.ID, task)

	return res, nil
}

// checkAndInsert is the single mutually exclusive section: no two concurrent
// submissions for one fingerprint can both pass the lookup. It returns a
// non-nil generation only when a new record was inserted.
func (g *Generator) checkAndInsert(ctx context.Context, task Task, allowOnlyExisting, force bool) (*types.Generation, Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !force {
		existing, err := g.generations.FindByFingerprint(ctx, task.ProblemID, task.GenerationLevel, task.SolutionID)
		if err != nil {
			return nil, Result{}, err
		}
		if len(existing) > 0 {
			return nil, Result{GenerationID: existing[0].ID, IsNew: false}, nil
		}
		if allowOnlyExisting {
			return nil, Result{}, ErrGenerationNotFound
		}
	}

	gen, err := g.generations.Add(ctx, &types.Generation{
		ProblemID:            task.ProblemID,
		SolutionID:           task.SolutionID,
		GenerationLevel:      task.GenerationLevel,
		PreviousGenerationID: task.PreviousGenerationID,
		TemplateName:         task.TemplateName,
		TemplateVariables:    datatypes.NewJSONType(task.TemplateVariables),
		Status:               types.StatusInProgress,
	})
	if err != nil {
		return nil, Result{}, err
	}
	return gen, Result{GenerationID: gen.ID, IsNew: true}, nil
}

// runPipeline executes the render/complete pipeline for a freshly inserted
// record and is that record's only terminal-status writer. It is detached
// from the submitting caller, so failures land in the store, not in a
// return value.
func (g *Generator) runPipeline(generationID int64, task Task) {
	ctx, span := tracer.Start(context.Background(), "generation.pipeline",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int64("generation.id", generationID),
			attribute.String("generation.template", task.TemplateName),
			attribute.Int("generation.level", task.GenerationLevel),
		))
	defer span.End()

	runLog := g.log.With("generation_id", generationID, "template", task.TemplateName)

	input, output, err := g.generate(ctx, task)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		runLog.Error("Generation pipeline failed", "error", err)
		if err := g.generations.SetStatusAndResult(ctx, generationID, types.StatusFailed, "", ""); err != nil {
			runLog.Error("Failed to persist FAILED status", "error", err)
		}
		return
	}

	span.SetStatus(codes.Ok, "")
	if err := g.generations.SetStatusAndResult(ctx, generationID, types.StatusReady, input, output); err != nil {
		runLog.Error("Failed to persist READY status", "error", err)
	}
}

func (g *Generator) generate(ctx context.Context, task Task) (input, output string, err error) {
	tpl, err := g.templates.GetTemplate(ctx, task.TemplateName)
	if err != nil {
		return "", "", err
	}

	var dialog []types.ChatMessage
	if task.PreviousGenerationID != 0 {
		dialog, err = g.generations.DialogChain(ctx, task.PreviousGenerationID)
		if err != nil {
			return "", "", err
		}
	}

	input, err = mustache.Render(tpl.Template, task.TemplateVariables.Map())
	if err != nil {
		return "", "", err
	}

	messages := append(dialog, types.ChatMessage{Text: input, IsUser: true})
	output, err = g.chat.Chat(ctx, messages)
	if err != nil {
		return "", "", err
	}
	return input, output, nil
}

// WaitForGeneration polls the record until it leaves IN_PROGRESS. Multiple
// callers may wait on the same id; each polls independently. Cancelling the
// context stops this waiter only, never the pipeline.
func (g *Generator) WaitForGeneration(ctx context.Context, generationID int64) (*types.Generation, error) {
	for {
		gen, err := g.generations.GetGeneration(ctx, generationID)
		if err != nil {
			return nil, err
		}
		if gen == nil {
			return nil, ErrGenerationNotFound
		}

		switch gen.Status {
		case types.StatusReady:
			return gen, nil
		case types.StatusFailed:
			return nil, ErrGenerationFailed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(g.pollInterval):
		}
	}
}
