package bot

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type callbackKind int

const (
	callbackUnknown callbackKind = iota
	callbackContests
	callbackProblems
	callbackContest
	callbackProblem
	callbackHint
	callbackSolution
	callbackGeneration
	callbackRegenerate
	callbackVote
)

type callback struct {
	kind         callbackKind
	contestID    int64
	problemID    int64
	problemSlug  string
	solutionID   int64
	generationID int64
	isUpVote     bool
}

// parseCallback decodes inline-keyboard callback data. Malformed numeric
// segments produce an id of -1 so handlers can answer with a clear error
// instead of silently dropping the tap.
func parseCallback(data string) (callback, bool) {
	switch data {
	case "contests":
		return callback{kind: callbackContests}, true
	case "problems":
		return callback{kind: callbackProblems}, true
	}

	num := func(s string) int64 {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return -1
		}
		return n
	}

	switch {
	case strings.HasPrefix(data, "contest_"):
		return callback{kind: callbackContest, contestID: num(strings.TrimPrefix(data, "contest_"))}, true
	case strings.HasPrefix(data, "generation_"):
		return callback{kind: callbackGeneration, generationID: num(strings.TrimPrefix(data, "generation_"))}, true
	case strings.HasPrefix(data, "regenerate_"):
		return callback{kind: callbackRegenerate, generationID: num(strings.TrimPrefix(data, "regenerate_"))}, true
	case strings.HasPrefix(data, "voteup_"):
		return callback{kind: callbackVote, generationID: num(strings.TrimPrefix(data, "voteup_")), isUpVote: true}, true
	case strings.HasPrefix(data, "votedown_"):
		return callback{kind: callbackVote, generationID: num(strings.TrimPrefix(data, "votedown_"))}, true
	case strings.HasPrefix(data, "problem_"):
		parts := strings.Split(strings.TrimPrefix(data, "problem_"), "_")
		if len(parts) != 2 {
			return callback{}, false
		}
		return callback{kind: callbackProblem, problemID: num(parts[0]), problemSlug: parts[1]}, true
	case strings.HasPrefix(data, "hint_"):
		parts := strings.Split(strings.TrimPrefix(data, "hint_"), "_")
		if len(parts) != 2 {
			return callback{}, false
		}
		return callback{kind: callbackHint, problemID: num(parts[0]), problemSlug: parts[1]}, true
	case strings.HasPrefix(data, "solution_"):
		parts := strings.Split(strings.TrimPrefix(data, "solution_"), "_")
		if len(parts) != 4 {
			return callback{}, false
		}
		return callback{
			kind:        callbackSolution,
			contestID:   num(parts[0]),
			problemID:   num(parts[1]),
			problemSlug: parts[2],
			solutionID:  num(parts[3]),
		}, true
	}
	return callback{}, false
}

func (b *Bot) dispatch(ctx context.Context, c *Ctx, update tgbotapi.Update) {
	switch {
	case update.Message != nil && update.Message.IsCommand():
		b.dispatchCommand(ctx, c, update.Message)
	case update.CallbackQuery != nil:
		b.dispatchCallback(ctx, c, update.CallbackQuery.Data)
	case update.Message != nil && update.Message.Text != "":
		// Free-text chat is a private-chat feature for admins; students
		// interact through /helpme in their group chat.
		if c.IsGroupChat || !c.User.IsAdmin() {
			return
		}
		b.service.OnMessage(ctx, c)
	}
}

func (b *Bot) dispatchCommand(ctx context.Context, c *Ctx, msg *tgbotapi.Message) {
	args := strings.TrimSpace(msg.CommandArguments())
	switch strings.ToLower(msg.Command()) {
	case "start":
		if c.IsGroupChat || !c.User.IsAdmin() {
			return
		}
		b.service.ListUserContests(ctx, c)
	case "help":
		b.service.Help(ctx, c)
	case "helpme":
		b.service.OnHelpMe(ctx, c, args)
	case "setadmin":
		b.service.OnSetAdmin(ctx, c, args)
	case "gettemplate":
		if c.IsGroupChat || !c.User.IsAdmin() {
			return
		}
		b.service.OnGetTemplate(ctx, c, args)
	case "settemplate":
		if c.IsGroupChat || !c.User.IsAdmin() {
			return
		}
		name, template, ok := strings.Cut(args, " ")
		if !ok {
			b.service.replies.text(c, "Usage: /settemplate <name> <template text>")
			return
		}
		b.service.OnSetTemplate(ctx, c, name, template)
	case "authorizegroup", "authorize_group":
		if !c.IsGroupChat {
			return
		}
		b.service.OnAuthorizeGroup(ctx, c)
	}
}

func (b *Bot) dispatchCallback(ctx context.Context, c *Ctx, data string) {
	cb, ok := parseCallback(data)
	if !ok {
		b.log.Warn("unparseable callback data", "data", data)
		return
	}

	// Votes and regenerations stay available in authorized group chats;
	// everything else is the private admin console.
	switch cb.kind {
	case callbackVote:
		b.service.OnVote(ctx, c, cb.generationID, cb.isUpVote)
		return
	case callbackRegenerate:
		b.service.OnRegenerate(ctx, c, cb.generationID)
		return
	}

	if c.IsGroupChat || !c.User.IsAdmin() {
		return
	}

	switch cb.kind {
	case callbackContests:
		b.service.ListContests(ctx, c)
	case callbackProblems:
		b.service.OnProblems(ctx, c)
	case callbackContest:
		b.service.SelectContest(ctx, c, cb.contestID)
	case callbackProblem:
		b.service.OnProblem(ctx, c, cb.problemID, cb.problemSlug)
	case callbackHint:
		b.service.OnHint(ctx, c, cb.problemID, cb.problemSlug)
	case callbackSolution:
		b.service.OnSolution(ctx, c, cb.solutionID)
	case callbackGeneration:
		b.service.OnGeneration(ctx, c, cb.generationID)
	}
}
