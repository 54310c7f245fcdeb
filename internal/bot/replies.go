package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/spi-u/gpt-bot/internal/logger"
)

// replies renders outgoing messages. All sends are best-effort: a delivery
// failure is logged, never propagated, so one broken chat cannot wedge a
// handler.
type replies struct {
	api telegramAPI
	log *logger.Logger
}

func newReplies(api telegramAPI, baseLog *logger.Logger) *replies {
	return &replies{api: api, log: baseLog.With("component", "Replies")}
}

func (r *replies) text(c *Ctx, text string) {
	r.send(tgbotapi.NewMessage(c.ChatID, text))
}

func (r *replies) withButtons(c *Ctx, text string, rows [][]tgbotapi.InlineKeyboardButton) {
	msg := tgbotapi.NewMessage(c.ChatID, text)
	kept := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) > 0 {
			kept = append(kept, row)
		}
	}
	if len(kept) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(kept...)
	}
	r.send(msg)
}

// textEphemeral sends a message and deletes it after ttl. Used for notices
// that should not pile up in group chats.
func (r *replies) textEphemeral(c *Ctx, text string, ttl time.Duration) {
	sent, err := r.api.Send(tgbotapi.NewMessage(c.ChatID, text))
	if err != nil {
		r.log.Warn("failed to send message", "chat_id", c.ChatID, "error", err)
		return
	}
	chatID := c.ChatID
	time.AfterFunc(ttl, func() {
		if _, err := r.api.Request(tgbotapi.NewDeleteMessage(chatID, sent.MessageID)); err != nil {
			r.log.Warn("failed to delete ephemeral message", "chat_id", chatID, "error", err)
		}
	})
}

// generationOutput sends a model answer. Fenced code blocks become <pre>
// sections and list markers are stripped, matching what Telegram HTML mode
// can display.
func (r *replies) generationOutput(c *Ctx, output string) {
	msg := tgbotapi.NewMessage(c.ChatID, formatOutput(output))
	msg.ParseMode = tgbotapi.ModeHTML
	r.send(msg)
}

func (r *replies) codeBlock(c *Ctx, caption, code string) {
	msg := tgbotapi.NewMessage(c.ChatID, caption+"\n<pre>"+html.EscapeString(code)+"</pre>")
	msg.ParseMode = tgbotapi.ModeHTML
	r.send(msg)
}

func (r *replies) answerCallback(c *Ctx, text string) {
	if c.CallbackID == "" {
		return
	}
	if _, err := r.api.Request(tgbotapi.NewCallback(c.CallbackID, text)); err != nil {
		r.log.Warn("failed to answer callback query", "error", err)
	}
}

func (r *replies) send(msg tgbotapi.MessageConfig) {
	if _, err := r.api.Send(msg); err != nil {
		r.log.Warn("failed to send message", "chat_id", msg.ChatID, "error", err)
	}
}

func (r *replies) afterGeneration(c *Ctx, rows [][]tgbotapi.InlineKeyboardButton) {
	r.withButtons(c, "You can keep asking questions, in free form or with the buttons, or go back to picking a problem.", rows)
}

func (r *replies) afterGenerationInGroup(c *Ctx, rows [][]tgbotapi.InlineKeyboardButton) {
	r.withButtons(c, "Vote on my answer!", rows)
}

func (r *replies) afterProblemSelected(c *Ctx, title, slug string, rows [][]tgbotapi.InlineKeyboardButton) {
	r.withButtons(c, fmt.Sprintf("You picked problem %s. %s. Here is what you can do next.", slug, title), rows)
}

func (r *replies) startGeneration(c *Ctx, slug, title string) {
	r.text(c, fmt.Sprintf("Problem %s. %s. Generating a hint...", slug, title))
}

func (r *replies) startSolutionExplanation(c *Ctx, slug, title string, solutionID int64) {
	r.textEphemeral(c, fmt.Sprintf("Problem %s. %s. Submission #%d. Generating an explanation...", slug, title, solutionID), 30*time.Second)
}

func (r *replies) selectContest(c *Ctx) { r.text(c, "Now pick a contest.") }

func (r *replies) contestSelected(c *Ctx, id int64) {
	r.text(c, fmt.Sprintf("Contest %d selected.", id))
}

func (r *replies) backToProblemSelection(c *Ctx) { r.text(c, "Back to problem selection.") }

func (r *replies) wrongContestID(c *Ctx) {
	r.text(c, "I cannot tell which contest this refers to. Try again.")
}

func (r *replies) wrongProblemID(c *Ctx) {
	r.text(c, "I cannot tell which problem this refers to. Try again.")
}

func (r *replies) wrongGenerationID(c *Ctx) {
	r.text(c, "I cannot tell which answer this refers to. Try again.")
}

func (r *replies) somethingWentWrong(c *Ctx) { r.text(c, "Something went wrong. Try again.") }

func (r *replies) generationFailed(c *Ctx) {
	r.text(c, "Talking to the model failed. Try again later.")
}

func (r *replies) rateLimited(c *Ctx) { r.text(c, "Request limit reached. Try again later.") }

func (r *replies) thankYouForVote(c *Ctx) { r.answerCallback(c, "Thanks for the vote!") }

// formatOutput converts model markdown into Telegram HTML. Fenced code
// becomes <pre>, everything else is escaped, and bare list markers are
// dropped.
func formatOutput(output string) string {
	var sb strings.Builder
	inCode := false
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if inCode {
				sb.WriteString("</pre>\n")
			} else {
				sb.WriteString("<pre>")
			}
			inCode = !inCode
			continue
		}
		if inCode {
			sb.WriteString(html.EscapeString(line))
			sb.WriteString("\n")
			continue
		}
		trimmed := strings.TrimLeft(line, " ")
		for _, marker := range []string{"- ", "* ", "+ "} {
			if strings.HasPrefix(trimmed, marker) {
				trimmed = strings.TrimPrefix(trimmed, marker)
				break
			}
		}
		sb.WriteString(html.EscapeString(trimmed))
		sb.WriteString("\n")
	}
	if inCode {
		sb.WriteString("</pre>")
	}
	return strings.TrimRight(sb.String(), "\n")
}
