package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spi-u/gpt-bot/internal/clients/contester"
	"github.com/spi-u/gpt-bot/internal/generator"
	"github.com/spi-u/gpt-bot/internal/logger"
	"github.com/spi-u/gpt-bot/internal/ratelimit"
	"github.com/spi-u/gpt-bot/internal/repos"
	"github.com/spi-u/gpt-bot/internal/types"
)

const (
	templateHint         = "problemRequest"
	templateSolution     = "solutionComment"
	templateFreeText     = "freeText"
	hintGenerationLevel  = 0
	solutionCommentLevel = 2
)

// Generator is the slice of the orchestrator the service uses.
type Generator interface {
	Submit(ctx context.Context, task generator.Task, allowOnlyExisting bool) (generator.Result, error)
	Regenerate(ctx context.Context, generationID int64, allowOnlyExisting bool) (generator.Result, error)
	WaitForGeneration(ctx context.Context, generationID int64) (*types.Generation, error)
}

// Service implements the bot flows: contest and problem selection, hint and
// submission-explanation generation, free-text follow-ups, votes, and the
// admin commands.
type Service struct {
	replies     *replies
	buttons     *buttons
	gen         Generator
	users       repos.UserRepo
	groups      repos.GroupRepo
	generations repos.GenerationRepo
	actions     repos.ActionRepo
	templates   repos.TemplateRepo
	contester   contester.Client
	limiter     *ratelimit.Limiter
	log         *logger.Logger
}

func NewService(
	api telegramAPI,
	gen Generator,
	users repos.UserRepo,
	groups repos.GroupRepo,
	generations repos.GenerationRepo,
	actions repos.ActionRepo,
	templates repos.TemplateRepo,
	contesterClient contester.Client,
	limiter *ratelimit.Limiter,
	baseLog *logger.Logger,
) *Service {
	return &Service{
		replies:     newReplies(api, baseLog),
		buttons:     newButtons(generations, contesterClient, baseLog),
		gen:         gen,
		users:       users,
		groups:      groups,
		generations: generations,
		actions:     actions,
		templates:   templates,
		contester:   contesterClient,
		limiter:     limiter,
		log:         baseLog.With("service", "BotService"),
	}
}

func (s *Service) Help(ctx context.Context, c *Ctx) {
	s.replies.text(c, "To get started you need to link your contest-system account: send me your username and the Telegram link code from your profile page. After that pick a contest and a problem, or send /helpme <submission id> in your group chat.")
}

// startGeneration runs the rate-limit check and submits a task. A limited
// user may still attach to an in-flight or finished generation with the
// same fingerprint, but cannot start a new one.
func (s *Service) startGeneration(ctx context.Context, c *Ctx, task generator.Task) (int64, bool) {
	verdict, err := s.limiter.Check(ctx, c.User)
	if err != nil {
		s.log.Error("rate limit check failed", "user_id", c.User.ID, "error", err)
		s.replies.somethingWentWrong(c)
		return 0, false
	}
	limited := !verdict.Allowed

	res, err := s.gen.Submit(ctx, task, limited)
	if err != nil {
		if limited && errors.Is(err, generator.ErrGenerationNotFound) {
			s.replies.rateLimited(c)
			return 0, false
		}
		s.log.Error("failed to submit generation", "user_id", c.User.ID, "error", err)
		s.replies.somethingWentWrong(c)
		return 0, false
	}

	if res.IsNew {
		if err := s.limiter.MarkGenerated(ctx, c.User); err != nil {
			s.log.Warn("failed to record generation start", "user_id", c.User.ID, "error", err)
		}
	}
	return res.GenerationID, true
}

// deliver waits for a generation in the background and hands the finished
// record to the flow-specific continuation. The wait deliberately outlives
// the update that triggered it.
func (s *Service) deliver(c *Ctx, generationID int64, then func(ctx context.Context, gen *types.Generation)) {
	go func() {
		ctx := context.Background()
		gen, err := s.gen.WaitForGeneration(ctx, generationID)
		if err != nil {
			s.log.Warn("generation did not complete", "generation_id", generationID, "error", err)
			s.replies.generationFailed(c)
			return
		}
		then(ctx, gen)
	}()
}

func (s *Service) logChatAction(ctx context.Context, userID, contestID int64, gen *types.Generation, problemSlug string, dialog []types.ChatMessage) {
	details := types.ChatWithGPTDetails{
		ContestID:       contestID,
		ProblemID:       gen.ProblemID,
		ProblemSlug:     problemSlug,
		Dialog:          append(dialog, types.ChatMessage{Text: gen.Input, IsUser: true}, types.ChatMessage{Text: gen.Output}),
		GenerationID:    gen.ID,
		GenerationLevel: gen.GenerationLevel,
		SolutionID:      gen.SolutionID,
	}
	if err := s.actions.LogAction(ctx, userID, types.ActionChatWithGPT, details); err != nil {
		s.log.Warn("failed to log chat action", "user_id", userID, "error", err)
	}
}

func (s *Service) ListUserContests(ctx context.Context, c *Ctx) {
	contests, err := s.contester.AllContests(ctx, c.User.ContesterID)
	if err != nil {
		s.log.Error("failed to fetch contests", "user_id", c.User.ID, "error", err)
		s.replies.text(c, "Could not fetch your contests. Try again.")
		return
	}
	if len(contests) == 0 {
		s.replies.text(c, "No contests found for you.")
		return
	}
	s.replies.withButtons(c, "Here are your contests. Pick one:", s.buttons.contestsRows(contests))
}

func (s *Service) ListProblemsForContest(ctx context.Context, c *Ctx) {
	if c.User.ContestID == nil {
		s.replies.text(c, "No contest selected. Try again.")
		return
	}
	problems, err := s.contester.ProblemsForContest(ctx, *c.User.ContestID)
	if err != nil {
		s.log.Error("failed to fetch problems", "contest_id", *c.User.ContestID, "error", err)
		s.replies.text(c, "Could not fetch the problems. Try again.")
		return
	}
	if len(problems) == 0 {
		s.replies.text(c, "This contest has no problems.")
		return
	}
	s.replies.withButtons(c, "Problems in this contest. Pick one:", s.buttons.problemsRows(problems))
}

func (s *Service) ListContests(ctx context.Context, c *Ctx) {
	if err := s.users.UpdateContestID(ctx, c.User.ID, nil); err != nil {
		s.log.Warn("failed to reset contest selection", "user_id", c.User.ID, "error", err)
	}
	c.User.ContestID = nil
	s.replies.selectContest(c)
	s.ListUserContests(ctx, c)
}

func (s *Service) SelectContest(ctx context.Context, c *Ctx, contestID int64) {
	if contestID <= 0 {
		s.replies.wrongContestID(c)
		return
	}
	if err := s.users.UpdateContestID(ctx, c.User.ID, &contestID); err != nil {
		s.log.Error("failed to store contest selection", "user_id", c.User.ID, "error", err)
		s.replies.somethingWentWrong(c)
		return
	}
	c.User.ContestID = &contestID

	if err := s.actions.LogAction(ctx, c.User.ID, types.ActionSelectContest, types.SelectContestDetails{ContestID: contestID}); err != nil {
		s.log.Warn("failed to log contest selection", "user_id", c.User.ID, "error", err)
	}
	if err := s.users.UpdateLastStep(ctx, c.User.ID, types.StepSelectContest); err != nil {
		s.log.Warn("failed to update last step", "user_id", c.User.ID, "error", err)
	}
	s.replies.contestSelected(c, contestID)
	s.ListProblemsForContest(ctx, c)
}

func (s *Service) OnProblems(ctx context.Context, c *Ctx) {
	if err := s.users.UpdateProblem(ctx, c.User.ID, nil, nil); err != nil {
		s.log.Warn("failed to reset problem selection", "user_id", c.User.ID, "error", err)
	}
	c.User.ProblemID = nil
	c.User.ProblemSlug = nil
	s.replies.backToProblemSelection(c)

	if c.User.ContestID == nil {
		s.replies.wrongContestID(c)
		s.ListUserContests(ctx, c)
		return
	}
	s.ListProblemsForContest(ctx, c)
}

func (s *Service) OnProblem(ctx context.Context, c *Ctx, problemID int64, problemSlug string) {
	if c.User.ContestID == nil {
		s.replies.wrongContestID(c)
		return
	}
	if err := s.actions.LogAction(ctx, c.User.ID, types.ActionSelectProblem, types.SelectProblemDetails{
		ContestID:   *c.User.ContestID,
		ProblemID:   problemID,
		ProblemSlug: problemSlug,
	}); err != nil {
		s.log.Warn("failed to log problem selection", "user_id", c.User.ID, "error", err)
	}
	if problemID <= 0 {
		s.replies.wrongProblemID(c)
		return
	}

	if err := s.users.UpdateProblem(ctx, c.User.ID, &problemID, &problemSlug); err != nil {
		s.log.Error("failed to store problem selection", "user_id", c.User.ID, "error", err)
		s.replies.somethingWentWrong(c)
		return
	}
	if err := s.users.UpdateLastStep(ctx, c.User.ID, types.StepProblemSelected); err != nil {
		s.log.Warn("failed to update last step", "user_id", c.User.ID, "error", err)
	}
	c.User.ProblemID = &problemID
	c.User.ProblemSlug = &problemSlug

	statement, err := s.contester.ProblemDetails(ctx, *c.User.ContestID, problemSlug)
	if err != nil {
		s.log.Error("failed to fetch problem statement", "problem_id", problemID, "error", err)
		s.replies.somethingWentWrong(c)
		return
	}

	s.replies.afterProblemSelected(c, statement.Title, problemSlug, [][]tgButton{
		s.buttons.hintRow(problemID, problemSlug),
		s.buttons.variantsRow(ctx, problemID),
		s.buttons.solutionsRow(ctx, c.User.ContesterID, c.User.ContestID, &problemID, &problemSlug),
		s.buttons.toProblemsRow(),
		s.buttons.toContestsRow(),
	})
}

func (s *Service) OnHint(ctx context.Context, c *Ctx, problemID int64, problemSlug string) {
	if c.User.ContestID == nil {
		s.replies.wrongContestID(c)
		return
	}
	if problemID <= 0 {
		s.replies.wrongProblemID(c)
		return
	}
	contestID := *c.User.ContestID

	statement, err := s.contester.ProblemDetails(ctx, contestID, problemSlug)
	if err != nil {
		s.log.Error("failed to fetch problem statement", "problem_id", problemID, "error", err)
		s.replies.somethingWentWrong(c)
		return
	}
	jurySolution, err := s.contester.ProblemSolution(ctx, contestID, problemID)
	if err != nil {
		s.log.Warn("failed to fetch jury solution", "problem_id", problemID, "error", err)
		jurySolution = ""
	}

	s.replies.startGeneration(c, problemSlug, statement.Title)

	generationID, ok := s.startGeneration(ctx, c, generator.Task{
		ProblemID:       problemID,
		GenerationLevel: hintGenerationLevel,
		TemplateName:    templateHint,
		TemplateVariables: types.TemplateVariables{
			Problem:  statement.Text,
			Solution: jurySolution,
		},
	})
	if !ok {
		return
	}

	userID := c.User.ID
	s.deliver(c, generationID, func(ctx context.Context, gen *types.Generation) {
		s.logChatAction(ctx, userID, contestID, gen, problemSlug, nil)
		if err := s.users.UpdateLastStep(ctx, userID, types.StepChatWithGPT); err != nil {
			s.log.Warn("failed to update last step", "user_id", userID, "error", err)
		}

		s.replies.generationOutput(c, gen.Output)
		s.replies.afterGeneration(c, [][]tgButton{
			s.buttons.variantsRow(ctx, problemID),
			s.buttons.voteRow(gen.ID),
			s.buttons.solutionsRow(ctx, c.User.ContesterID, &contestID, &problemID, &problemSlug),
			s.buttons.toProblemsRow(),
			s.buttons.toContestsRow(),
		})
	})
}

func (s *Service) OnHelpMe(ctx context.Context, c *Ctx, args string) {
	if c.IsGroupChat && !c.GroupAuthorized {
		s.replies.text(c, "The bot is not authorized for this chat.")
		return
	}
	if !c.IsGroupChat && !c.User.IsAdmin() {
		s.replies.text(c, "Now go back to your group chat and we can talk there!")
		return
	}
	solutionID, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		solutionID = -1
	}
	s.OnSolution(ctx, c, solutionID)
}

func (s *Service) OnSolution(ctx context.Context, c *Ctx, solutionID int64) {
	if solutionID <= 0 {
		s.replies.text(c, "Wrong submission id. Send /helpme <submission id>.")
		return
	}

	solution, err := s.contester.SolutionDetails(ctx, solutionID)
	if err != nil {
		s.log.Error("failed to fetch solution details", "solution_id", solutionID, "error", err)
		s.replies.somethingWentWrong(c)
		return
	}
	if !c.User.IsAdmin() && solution.UserID != c.User.ContesterID {
		s.replies.text(c, "This is not your submission.")
		return
	}
	if solution.Verdict == "OK" {
		s.replies.text(c, "This submission is already accepted. Well done!")
		return
	}

	statement, err := s.contester.ProblemDetails(ctx, solution.ContestID, solution.ProblemSlug)
	if err != nil {
		s.log.Error("failed to fetch problem statement", "solution_id", solutionID, "error", err)
		s.replies.somethingWentWrong(c)
		return
	}
	jurySolution, err := s.contester.ProblemSolution(ctx, solution.ContestID, solution.ProblemID)
	if err != nil {
		s.log.Warn("failed to fetch jury solution", "problem_id", solution.ProblemID, "error", err)
		jurySolution = ""
	}

	s.replies.startSolutionExplanation(c, solution.ProblemSlug, statement.Title, solutionID)

	generationID, ok := s.startGeneration(ctx, c, generator.Task{
		ProblemID:       solution.ProblemID,
		SolutionID:      solutionID,
		GenerationLevel: solutionCommentLevel,
		TemplateName:    templateSolution,
		TemplateVariables: types.TemplateVariables{
			Problem:           statement.Text,
			Solution:          jurySolution,
			Code:              solution.SourceCode,
			CompilerMessage:   solution.CompilationError,
			ContesterMessage:  solution.Verdict,
			ProgramErrorTrace: solution.ErrorTrace,
		},
	})
	if !ok {
		return
	}

	userID := c.User.ID
	s.deliver(c, generationID, func(ctx context.Context, gen *types.Generation) {
		s.logChatAction(ctx, userID, solution.ContestID, gen, solution.ProblemSlug, nil)
		if err := s.users.UpdateLastStep(ctx, userID, types.StepChatWithGPT); err != nil {
			s.log.Warn("failed to update last step", "user_id", userID, "error", err)
		}

		s.replies.generationOutput(c, gen.Output)
		if c.IsGroupChat {
			s.replies.codeBlock(c, "Submission code:", solution.SourceCode)
			s.replies.afterGenerationInGroup(c, [][]tgButton{s.buttons.voteRow(gen.ID)})
			return
		}
		s.replies.afterGeneration(c, [][]tgButton{
			s.buttons.variantsRow(ctx, solution.ProblemID),
			s.buttons.voteRow(gen.ID),
			s.buttons.solutionsRow(ctx, c.User.ContesterID, c.User.ContestID, c.User.ProblemID, c.User.ProblemSlug),
			s.buttons.toProblemsRow(),
			s.buttons.toContestsRow(),
		})
	})
}

// OnMessage routes free text by the user's last recorded step.
func (s *Service) OnMessage(ctx context.Context, c *Ctx) {
	switch c.User.LastStep {
	case types.StepAuthorization:
		s.ListUserContests(ctx, c)
	case types.StepSelectContest, types.StepSelectProblem:
		if c.User.ContestID == nil {
			s.ListUserContests(ctx, c)
			return
		}
		s.ListProblemsForContest(ctx, c)
	case types.StepProblemSelected:
		s.replies.text(c, "Pick one of the options above.")
	case types.StepChatWithGPT:
		if c.User.ContestID == nil || c.User.ProblemID == nil {
			s.messageFallback(ctx, c)
			return
		}
		last, err := s.actions.LastByUserAndType(ctx, c.User.ID, types.ActionChatWithGPT)
		if err != nil {
			s.log.Error("failed to load last chat action", "user_id", c.User.ID, "error", err)
			s.messageFallback(ctx, c)
			return
		}
		if last == nil {
			s.messageFallback(ctx, c)
			return
		}
		var details types.ChatWithGPTDetails
		if err := last.DecodeDetails(&details); err != nil {
			s.log.Warn("unreadable chat action details", "user_id", c.User.ID, "error", err)
			s.messageFallback(ctx, c)
			return
		}
		s.FreeTextInput(ctx, c, *c.User.ContestID, *c.User.ProblemID, details)
	default:
		s.messageFallback(ctx, c)
	}
}

func (s *Service) messageFallback(ctx context.Context, c *Ctx) {
	s.replies.somethingWentWrong(c)
	s.ListUserContests(ctx, c)
}

// FreeTextInput continues a conversation: the new turn chains onto the last
// generation and bumps the level so each follow-up gets its own fingerprint.
func (s *Service) FreeTextInput(ctx context.Context, c *Ctx, contestID, problemID int64, prev types.ChatWithGPTDetails) {
	level := prev.GenerationLevel + 1

	generationID, ok := s.startGeneration(ctx, c, generator.Task{
		PreviousGenerationID: prev.GenerationID,
		ProblemID:            problemID,
		SolutionID:           prev.SolutionID,
		GenerationLevel:      level,
		TemplateName:         templateFreeText,
		TemplateVariables:    types.TemplateVariables{UserMessage: c.Message},
	})
	if !ok {
		return
	}

	userID := c.User.ID
	if err := s.users.UpdateLastStep(ctx, userID, types.StepChatWithGPT); err != nil {
		s.log.Warn("failed to update last step", "user_id", userID, "error", err)
	}

	s.deliver(c, generationID, func(ctx context.Context, gen *types.Generation) {
		s.logChatAction(ctx, userID, contestID, gen, prev.ProblemSlug, prev.Dialog)
		s.replies.generationOutput(c, gen.Output)
		s.replies.afterGeneration(c, [][]tgButton{
			s.buttons.variantsRow(ctx, problemID),
			s.buttons.voteRow(gen.ID),
			s.buttons.solutionsRow(ctx, c.User.ContesterID, c.User.ContestID, c.User.ProblemID, c.User.ProblemSlug),
			s.buttons.toProblemsRow(),
		})
	})
}

func (s *Service) OnRegenerate(ctx context.Context, c *Ctx, generationID int64) {
	if generationID <= 0 {
		s.replies.wrongGenerationID(c)
		return
	}
	s.replies.text(c, "Generating a new answer...")

	verdict, err := s.limiter.Check(ctx, c.User)
	if err != nil {
		s.log.Error("rate limit check failed", "user_id", c.User.ID, "error", err)
		s.replies.somethingWentWrong(c)
		return
	}
	limited := !verdict.Allowed

	res, err := s.gen.Regenerate(ctx, generationID, limited)
	if err != nil {
		if errors.Is(err, generator.ErrGenerationNotFound) {
			s.replies.wrongGenerationID(c)
			return
		}
		s.log.Error("failed to regenerate", "generation_id", generationID, "error", err)
		s.replies.somethingWentWrong(c)
		return
	}
	if res.IsNew {
		if err := s.limiter.MarkGenerated(ctx, c.User); err != nil {
			s.log.Warn("failed to record generation start", "user_id", c.User.ID, "error", err)
		}
	}

	s.deliver(c, res.GenerationID, func(ctx context.Context, gen *types.Generation) {
		s.replies.generationOutput(c, gen.Output)
		if c.IsGroupChat {
			s.replies.afterGenerationInGroup(c, [][]tgButton{s.buttons.voteRow(gen.ID)})
			return
		}
		s.replies.afterGeneration(c, [][]tgButton{
			s.buttons.variantsRow(ctx, gen.ProblemID),
			s.buttons.voteRow(gen.ID),
			s.buttons.solutionsRow(ctx, c.User.ContesterID, c.User.ContestID, c.User.ProblemID, c.User.ProblemSlug),
			s.buttons.toProblemsRow(),
			s.buttons.toContestsRow(),
		})
	})
}

// OnGeneration replays a stored answer picked from the variants buttons.
func (s *Service) OnGeneration(ctx context.Context, c *Ctx, generationID int64) {
	if generationID <= 0 {
		s.replies.wrongGenerationID(c)
		return
	}

	gen, err := s.gen.WaitForGeneration(ctx, generationID)
	if err != nil {
		if errors.Is(err, generator.ErrGenerationNotFound) {
			s.replies.wrongGenerationID(c)
			return
		}
		s.replies.generationFailed(c)
		return
	}

	if gen.Output != "" {
		s.replies.generationOutput(c, gen.Output)
	}
	s.replies.afterGeneration(c, [][]tgButton{
		s.buttons.variantsRow(ctx, gen.ProblemID),
		s.buttons.voteRow(gen.ID),
		s.buttons.solutionsRow(ctx, c.User.ContesterID, c.User.ContestID, c.User.ProblemID, c.User.ProblemSlug),
		s.buttons.toProblemsRow(),
		s.buttons.toContestsRow(),
	})
}

func (s *Service) OnVote(ctx context.Context, c *Ctx, generationID int64, isUpVote bool) {
	if generationID <= 0 {
		s.replies.wrongGenerationID(c)
		return
	}

	if err := s.actions.LogAction(ctx, c.User.ID, types.ActionVote, types.VoteDetails{
		GenerationID: generationID,
		IsUpVote:     isUpVote,
	}); err != nil {
		s.log.Warn("failed to log vote", "user_id", c.User.ID, "error", err)
	}
	if err := s.generations.AddVote(ctx, generationID, isUpVote); err != nil {
		s.log.Error("failed to store vote", "generation_id", generationID, "error", err)
		s.replies.somethingWentWrong(c)
		return
	}
	s.replies.thankYouForVote(c)
}

// ProcessAuthorization handles updates from users the bot does not know
// yet. In private chat the message must be "<username> <link code>"; the
// code is verified against the contest system before the account is linked.
func (s *Service) ProcessAuthorization(ctx context.Context, c *Ctx) {
	if c.IsGroupChat {
		s.replies.textEphemeral(c, c.RawUserName+"\nYou need to link your account before talking to me. Open a private chat with the bot and I will walk you through it.", 10*time.Second)
		return
	}

	fields := strings.Fields(c.Message)
	if len(fields) != 2 {
		s.replies.text(c, "Hi! I do not recognize you yet. Send me your contest-system username and your Telegram link code from your profile page, separated by a space.")
		return
	}
	username, code := fields[0], fields[1]

	s.replies.text(c, fmt.Sprintf("Checking... you said your username is %s and your code is %s.", username, code))

	userData, err := s.contester.UserData(ctx, username)
	if err != nil {
		s.log.Error("failed to look up contester user", "username", username, "error", err)
		s.replies.somethingWentWrong(c)
		return
	}
	if userData == nil {
		s.replies.text(c, "I cannot find that username in the contest system. Try again!")
		return
	}

	realCode, err := s.contester.TelegramLinkCode(ctx, userData.ID)
	if err != nil || realCode == "" {
		s.log.Warn("failed to fetch link code", "contester_id", userData.ID, "error", err)
		s.replies.text(c, "I cannot find your link code. Try again!")
		return
	}
	if realCode != code {
		s.replies.text(c, "The code does not match. Try again!")
		return
	}

	user, err := s.users.Create(ctx, c.TelegramID, userData.ID, userData.Username)
	if err != nil {
		s.log.Error("failed to create user", "telegram_id", c.TelegramID, "error", err)
		s.replies.somethingWentWrong(c)
		return
	}
	if err := s.actions.LogAction(ctx, user.ID, types.ActionAuthorization, types.AuthorizationDetails{
		UserID:      user.ID,
		TelegramID:  c.TelegramID,
		ContesterID: userData.ID,
	}); err != nil {
		s.log.Warn("failed to log authorization", "user_id", user.ID, "error", err)
	}

	c.User = user
	s.replies.text(c, "You are linked up!")
}

func (s *Service) OnGetTemplate(ctx context.Context, c *Ctx, name string) {
	if !c.User.IsAdmin() {
		s.replies.text(c, "Only an admin can read templates.")
		return
	}
	tpl, err := s.templates.GetTemplate(ctx, name)
	if err != nil {
		if errors.Is(err, repos.ErrTemplateNotFound) {
			s.replies.text(c, "No such template.")
			return
		}
		s.log.Error("failed to fetch template", "template", name, "error", err)
		s.replies.somethingWentWrong(c)
		return
	}
	s.replies.text(c, tpl.Template)
}

func (s *Service) OnSetTemplate(ctx context.Context, c *Ctx, name, template string) {
	if !c.User.IsAdmin() {
		s.replies.text(c, "Only an admin can update templates.")
		return
	}
	if err := s.templates.UpsertTemplate(ctx, name, template); err != nil {
		s.log.Error("failed to upsert template", "template", name, "error", err)
		s.replies.text(c, "Updating the template failed.")
		return
	}
	s.replies.text(c, "Template updated.")
}

func (s *Service) OnSetAdmin(ctx context.Context, c *Ctx, username string) {
	if !c.User.IsAdmin() {
		s.replies.text(c, "You are not an admin.")
		return
	}
	ok, err := s.users.UpdateRole(ctx, username, types.RoleAdmin)
	if err != nil {
		s.log.Error("failed to update role", "username", username, "error", err)
		s.replies.somethingWentWrong(c)
		return
	}
	if !ok {
		s.replies.text(c, "Cannot find that user.")
		return
	}
	s.replies.text(c, fmt.Sprintf("%s is now an admin.", username))
}

func (s *Service) OnAuthorizeGroup(ctx context.Context, c *Ctx) {
	if !c.User.IsAdmin() {
		s.replies.text(c, "Only a bot admin can authorize a group. If you are a student, send me /helpme <submission id> and I will help you!")
		return
	}
	if c.GroupAuthorized {
		s.replies.text(c, "This group is already authorized.")
		return
	}
	if _, err := s.groups.AddGroup(ctx, c.ChatID); err != nil {
		s.log.Error("failed to authorize group", "chat_id", c.ChatID, "error", err)
		s.replies.somethingWentWrong(c)
		return
	}
	s.replies.text(c, "Group authorized.")
}
