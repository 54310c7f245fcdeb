package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/spi-u/gpt-bot/internal/clients/contester"
	"github.com/spi-u/gpt-bot/internal/logger"
	"github.com/spi-u/gpt-bot/internal/types"
)

const topVariants = 5

type tgButton = tgbotapi.InlineKeyboardButton

// buttons builds inline keyboard rows. Rows that need data the bot cannot
// fetch come back empty; replies drops empty rows before sending.
type buttons struct {
	generations generationReader
	contester   contester.Client
	log         *logger.Logger
}

type generationReader interface {
	TopForProblem(ctx context.Context, problemID int64, limit int) ([]*types.Generation, error)
}

func newButtons(generations generationReader, contesterClient contester.Client, baseLog *logger.Logger) *buttons {
	return &buttons{
		generations: generations,
		contester:   contesterClient,
		log:         baseLog.With("component", "Buttons"),
	}
}

func (b *buttons) voteRow(generationID int64) []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("\U0001F44D", fmt.Sprintf("voteup_%d", generationID)),
		tgbotapi.NewInlineKeyboardButtonData("\U0001F44E", fmt.Sprintf("votedown_%d", generationID)),
		tgbotapi.NewInlineKeyboardButtonData("\U0001F501", fmt.Sprintf("regenerate_%d", generationID)),
	)
}

func (b *buttons) hintRow(problemID int64, problemSlug string) []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Get a hint for this problem", fmt.Sprintf("hint_%d_%s", problemID, problemSlug)),
	)
}

// variantsRow offers the best existing follow-up answers for a problem,
// labelled by the question that produced them.
func (b *buttons) variantsRow(ctx context.Context, problemID int64) []tgbotapi.InlineKeyboardButton {
	top, err := b.generations.TopForProblem(ctx, problemID, topVariants)
	if err != nil {
		b.log.Warn("failed to fetch top generations", "problem_id", problemID, "error", err)
		return nil
	}

	var row []tgbotapi.InlineKeyboardButton
	for _, gen := range top {
		question := gen.TemplateVariables.Data().UserMessage
		if question == "" {
			continue
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(question, fmt.Sprintf("generation_%d", gen.ID)))
	}
	return row
}

// solutionsRow lists the user's rejected submissions for the problem. Any
// missing selection state disables the row.
func (b *buttons) solutionsRow(ctx context.Context, contesterID int64, contestID, problemID *int64, problemSlug *string) []tgbotapi.InlineKeyboardButton {
	if contestID == nil || problemID == nil || problemSlug == nil {
		return nil
	}

	solutions, err := b.contester.UserSolutions(ctx, contesterID, *contestID, *problemID)
	if err != nil {
		b.log.Warn("failed to fetch user solutions", "problem_id", *problemID, "error", err)
		return nil
	}

	var row []tgbotapi.InlineKeyboardButton
	for _, solution := range solutions {
		if solution.Verdict == "OK" {
			continue
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("Submission %d", solution.ID),
			fmt.Sprintf("solution_%d_%d_%s_%d", *contestID, *problemID, *problemSlug, solution.ID),
		))
	}
	return row
}

func (b *buttons) toProblemsRow() []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Back to problem selection", "problems"),
	)
}

func (b *buttons) toContestsRow() []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Back to contest selection", "contests"),
	)
}

func (b *buttons) contestsRows(contests []contester.Contest) [][]tgbotapi.InlineKeyboardButton {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(contests))
	for _, contest := range contests {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(contest.Name, fmt.Sprintf("contest_%d", contest.ID)),
		))
	}
	return rows
}

func (b *buttons) problemsRows(problems []contester.Problem) [][]tgbotapi.InlineKeyboardButton {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(problems)+1)
	for _, problem := range problems {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				problem.Slug+". "+problem.Title,
				fmt.Sprintf("problem_%d_%s", problem.ID, problem.Slug),
			),
		))
	}
	rows = append(rows, b.toContestsRow())
	return rows
}
