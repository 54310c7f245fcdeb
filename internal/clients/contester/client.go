// Package contester is the HTTP client for the external contest system.
// Authentication is a session token sent as a cookie on every request.
package contester

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/spi-u/gpt-bot/internal/config"
	"github.com/spi-u/gpt-bot/internal/logger"
)

type Contest struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Problem struct {
	ID    int64
	Slug  string
	Title string
}

type ProblemStatement struct {
	Title string
	Text  string
}

type Solution struct {
	ID        int64
	VerdictID int64
	Verdict   string
}

type SolutionDetails struct {
	ID               int64
	VerdictID        int64
	Verdict          string
	SourceCode       string
	CompilationError string
	ErrorTrace       string
	ProblemSlug      string
	ProblemID        int64
	ContestID        int64
	UserID           int64
}

type UserData struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type Client interface {
	AllContests(ctx context.Context, contesterID int64) ([]Contest, error)
	ProblemsForContest(ctx context.Context, contestID int64) ([]Problem, error)
	ProblemDetails(ctx context.Context, contestID int64, problemSlug string) (*ProblemStatement, error)
	ProblemSolution(ctx context.Context, contestID, problemID int64) (string, error)
	UserSolutions(ctx context.Context, contesterID, contestID, problemID int64) ([]Solution, error)
	SolutionDetails(ctx context.Context, solutionID int64) (*SolutionDetails, error)
	UserData(ctx context.Context, username string) (*UserData, error)
	TelegramLinkCode(ctx context.Context, contesterID int64) (string, error)
}

type client struct {
	httpClient *http.Client
	log        *logger.Logger
	baseURL    string
	token      string
}

func NewClient(cfg config.ContesterConfig, baseLog *logger.Logger) Client {
	return &client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        baseLog.With("client", "ContesterClient"),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
	}
}

func (c *client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Cookie", "auth.token="+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("contester request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("contester %s returned status %d", path, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode contester response %s: %w", path, err)
	}
	return nil
}

func (c *client) AllContests(ctx context.Context, contesterID int64) ([]Contest, error) {
	var resp struct {
		Contests []Contest `json:"contests"`
	}
	if err := c.get(ctx, fmt.Sprintf("/contest/all?userId=%d", contesterID), &resp); err != nil {
		return nil, err
	}
	return resp.Contests, nil
}

func (c *client) ProblemsForContest(ctx context.Context, contestID int64) ([]Problem, error) {
	var resp []struct {
		ID                  int64  `json:"id"`
		Title               string `json:"title"`
		InternalSymbolIndex string `json:"internalSymbolIndex"`
	}
	if err := c.get(ctx, fmt.Sprintf("/contest/%d/problems", contestID), &resp); err != nil {
		return nil, err
	}
	problems := make([]Problem, 0, len(resp))
	for _, p := range resp {
		problems = append(problems, Problem{ID: p.ID, Title: p.Title, Slug: p.InternalSymbolIndex})
	}
	return problems, nil
}

func (c *client) ProblemDetails(ctx context.Context, contestID int64, problemSlug string) (*ProblemStatement, error) {
	var resp struct {
		Title         string `json:"title"`
		HTMLStatement string `json:"htmlStatement"`
	}
	if err := c.get(ctx, fmt.Sprintf("/contest/%d/problems/%s", contestID, problemSlug), &resp); err != nil {
		return nil, err
	}
	return &ProblemStatement{
		Title: resp.Title,
		Text:  extractText(resp.HTMLStatement),
	}, nil
}

// ProblemSolution fetches the jury solution source for a problem, or ""
// when the contest has none published.
func (c *client) ProblemSolution(ctx context.Context, contestID, problemID int64) (string, error) {
	var list struct {
		Solutions []struct {
			ID int64 `json:"id"`
		} `json:"solutions"`
	}
	path := fmt.Sprintf("/contest/%d/solutions/all?contestId=%d&filterProblemIds=%d&filterVerdictIds=1",
		contestID, contestID, problemID)
	if err := c.get(ctx, path, &list); err != nil {
		return "", err
	}
	if len(list.Solutions) == 0 {
		return "", nil
	}

	var code struct {
		SourceCode string `json:"sourceCode"`
	}
	if err := c.get(ctx, fmt.Sprintf("/contest/%d/solutions/%d/code", contestID, list.Solutions[0].ID), &code); err != nil {
		return "", err
	}
	return code.SourceCode, nil
}

func (c *client) UserSolutions(ctx context.Context, contesterID, contestID, problemID int64) ([]Solution, error) {
	var resp struct {
		Solutions []struct {
			ID      int64 `json:"id"`
			Verdict *struct {
				ID   int64  `json:"id"`
				Name string `json:"name"`
			} `json:"verdict"`
		} `json:"solutions"`
	}
	path := fmt.Sprintf("/contest/%d/solutions/all?contestId=%d&filterProblemIds=%d&filterUserIds=%d&count=5&offset=0&select=all",
		contestID, contestID, problemID, contesterID)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	solutions := make([]Solution, 0, len(resp.Solutions))
	for _, s := range resp.Solutions {
		solution := Solution{ID: s.ID}
		if s.Verdict != nil {
			solution.VerdictID = s.Verdict.ID
			solution.Verdict = s.Verdict.Name
		}
		solutions = append(solutions, solution)
	}
	return solutions, nil
}

func (c *client) SolutionDetails(ctx context.Context, solutionID int64) (*SolutionDetails, error) {
	var meta struct {
		ContestID int64 `json:"contestId"`
	}
	if err := c.get(ctx, fmt.Sprintf("/solution/%d", solutionID), &meta); err != nil {
		return nil, err
	}
	if meta.ContestID == 0 {
		return nil, fmt.Errorf("solution %d has no contest", solutionID)
	}

	var resp struct {
		ID                  int64  `json:"id"`
		VerdictID           int64  `json:"verdictId"`
		SourceCode          string `json:"sourceCode"`
		CompilationError    string `json:"compilationError"`
		ErrorTrace          string `json:"errorTrace"`
		InternalSymbolIndex string `json:"internalSymbolIndex"`
		UserID              int64  `json:"userId"`
		Verdict             *struct {
			Name string `json:"name"`
		} `json:"verdict"`
		Problem struct {
			ID int64 `json:"id"`
		} `json:"problem"`
	}
	if err := c.get(ctx, fmt.Sprintf("/contest/%d/solutions/%d/code", meta.ContestID, solutionID), &resp); err != nil {
		return nil, err
	}

	details := &SolutionDetails{
		ID:               resp.ID,
		VerdictID:        resp.VerdictID,
		Verdict:          "Unknown",
		SourceCode:       resp.SourceCode,
		CompilationError: resp.CompilationError,
		ErrorTrace:       resp.ErrorTrace,
		ProblemSlug:      resp.InternalSymbolIndex,
		ProblemID:        resp.Problem.ID,
		ContestID:        meta.ContestID,
		UserID:           resp.UserID,
	}
	if resp.Verdict != nil {
		details.Verdict = resp.Verdict.Name
	}
	return details, nil
}

func (c *client) UserData(ctx context.Context, username string) (*UserData, error) {
	var resp UserData
	if err := c.get(ctx, "/admin/users/username?username="+username, &resp); err != nil {
		return nil, err
	}
	if resp.ID == 0 {
		return nil, nil
	}
	return &resp, nil
}

func (c *client) TelegramLinkCode(ctx context.Context, contesterID int64) (string, error) {
	var resp struct {
		LinkKey string `json:"linkKey"`
	}
	if err := c.get(ctx, fmt.Sprintf("/admin/telegram/%d", contesterID), &resp); err != nil {
		return "", err
	}
	return resp.LinkKey, nil
}

// extractText strips markup from a problem statement, returning its visible
// text. Statements arrive as HTML; the model only needs the words.
func extractText(markup string) string {
	node, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return markup
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(node)
	return strings.TrimSpace(sb.String())
}
