package repos

import (
	"context"
	"errors"
	"testing"

	"github.com/spi-u/gpt-bot/internal/logger"
	"github.com/spi-u/gpt-bot/internal/types"
)

func TestTemplateUpsertAndGet(t *testing.T) {
	repo := NewTemplateRepo(newTestDB(t), logger.NewNop())
	ctx := context.Background()

	if err := repo.UpsertTemplate(ctx, "freeText", "{{userMessage}}"); err != nil {
		t.Fatalf("UpsertTemplate: %v", err)
	}

	tpl, err := repo.GetTemplate(ctx, "freeText")
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if tpl.Template != "{{userMessage}}" {
		t.Errorf("template = %q", tpl.Template)
	}

	// Upsert on an existing name replaces the body.
	if err := repo.UpsertTemplate(ctx, "freeText", "updated {{userMessage}}"); err != nil {
		t.Fatalf("second UpsertTemplate: %v", err)
	}
	tpl, err = repo.GetTemplate(ctx, "freeText")
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if tpl.Template != "updated {{userMessage}}" {
		t.Errorf("template = %q", tpl.Template)
	}
}

func TestGetTemplateMissing(t *testing.T) {
	repo := NewTemplateRepo(newTestDB(t), logger.NewNop())

	_, err := repo.GetTemplate(context.Background(), "missing")
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("err = %v, want ErrTemplateNotFound", err)
	}
}

func TestActionLogAndReadBack(t *testing.T) {
	repo := NewActionRepo(newTestDB(t), logger.NewNop())
	ctx := context.Background()

	first := types.ChatWithGPTDetails{GenerationID: 1, GenerationLevel: 0, ProblemID: 10}
	second := types.ChatWithGPTDetails{GenerationID: 2, GenerationLevel: 1, ProblemID: 10,
		Dialog: []types.ChatMessage{{Text: "q", IsUser: true}, {Text: "a"}}}

	if err := repo.LogAction(ctx, 5, types.ActionChatWithGPT, first); err != nil {
		t.Fatalf("LogAction: %v", err)
	}
	if err := repo.LogAction(ctx, 5, types.ActionChatWithGPT, second); err != nil {
		t.Fatalf("LogAction: %v", err)
	}
	if err := repo.LogAction(ctx, 5, types.ActionVote, types.VoteDetails{GenerationID: 2, IsUpVote: true}); err != nil {
		t.Fatalf("LogAction vote: %v", err)
	}

	last, err := repo.LastByUserAndType(ctx, 5, types.ActionChatWithGPT)
	if err != nil {
		t.Fatalf("LastByUserAndType: %v", err)
	}
	if last == nil {
		t.Fatal("expected a chat action")
	}

	var details types.ChatWithGPTDetails
	if err := last.DecodeDetails(&details); err != nil {
		t.Fatalf("DecodeDetails: %v", err)
	}
	if details.GenerationID != 2 || len(details.Dialog) != 2 {
		t.Errorf("unexpected details: %+v", details)
	}

	none, err := repo.LastByUserAndType(ctx, 6, types.ActionChatWithGPT)
	if err != nil {
		t.Fatalf("LastByUserAndType other user: %v", err)
	}
	if none != nil {
		t.Errorf("expected nil for user without actions, got %+v", none)
	}
}
