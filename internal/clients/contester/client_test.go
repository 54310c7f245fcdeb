package contester

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spi-u/gpt-bot/internal/config"
	"github.com/spi-u/gpt-bot/internal/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.ContesterConfig{Token: "test-token", BaseURL: srv.URL}, logger.NewNop())
}

func TestAllContestsSendsTokenCookie(t *testing.T) {
	var gotCookie string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		if r.URL.Path != "/contest/all" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("userId") != "42" {
			t.Errorf("unexpected userId %q", r.URL.Query().Get("userId"))
		}
		w.Write([]byte(`{"contests":[{"id":1,"name":"Div 2"},{"id":2,"name":"Div 1"}]}`))
	})

	contests, err := c.AllContests(context.Background(), 42)
	if err != nil {
		t.Fatalf("AllContests: %v", err)
	}
	if gotCookie != "auth.token=test-token" {
		t.Errorf("cookie = %q", gotCookie)
	}
	if len(contests) != 2 || contests[0].Name != "Div 2" {
		t.Errorf("unexpected contests: %+v", contests)
	}
}

func TestProblemsForContest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/contest/7/problems" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`[{"id":10,"title":"Two Sum","internalSymbolIndex":"A"}]`))
	})

	problems, err := c.ProblemsForContest(context.Background(), 7)
	if err != nil {
		t.Fatalf("ProblemsForContest: %v", err)
	}
	if len(problems) != 1 {
		t.Fatalf("expected 1 problem, got %d", len(problems))
	}
	if problems[0].Slug != "A" || problems[0].Title != "Two Sum" || problems[0].ID != 10 {
		t.Errorf("unexpected problem: %+v", problems[0])
	}
}

func TestProblemDetailsStripsMarkup(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"title":"Two Sum","htmlStatement":"<p>Given <b>n</b> integers.</p>"}`))
	})

	st, err := c.ProblemDetails(context.Background(), 7, "A")
	if err != nil {
		t.Fatalf("ProblemDetails: %v", err)
	}
	if st.Title != "Two Sum" {
		t.Errorf("title = %q", st.Title)
	}
	if st.Text != "Given n integers." {
		t.Errorf("text = %q", st.Text)
	}
}

func TestProblemSolution(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/contest/7/solutions/all":
			w.Write([]byte(`{"solutions":[{"id":99},{"id":100}]}`))
		case "/contest/7/solutions/99/code":
			w.Write([]byte(`{"sourceCode":"print(1)"}`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
			http.NotFound(w, r)
		}
	})

	code, err := c.ProblemSolution(context.Background(), 7, 10)
	if err != nil {
		t.Fatalf("ProblemSolution: %v", err)
	}
	if code != "print(1)" {
		t.Errorf("code = %q", code)
	}
}

func TestProblemSolutionNonePublished(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"solutions":[]}`))
	})

	code, err := c.ProblemSolution(context.Background(), 7, 10)
	if err != nil {
		t.Fatalf("ProblemSolution: %v", err)
	}
	if code != "" {
		t.Errorf("expected empty code, got %q", code)
	}
}

func TestUserSolutions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("filterUserIds") != "42" || q.Get("filterProblemIds") != "10" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		w.Write([]byte(`{"solutions":[{"id":5,"verdict":{"id":2,"name":"Wrong answer"}},{"id":6,"verdict":null}]}`))
	})

	solutions, err := c.UserSolutions(context.Background(), 42, 7, 10)
	if err != nil {
		t.Fatalf("UserSolutions: %v", err)
	}
	if len(solutions) != 2 {
		t.Fatalf("expected 2 solutions, got %d", len(solutions))
	}
	if solutions[0].Verdict != "Wrong answer" || solutions[0].VerdictID != 2 {
		t.Errorf("unexpected first solution: %+v", solutions[0])
	}
	if solutions[1].Verdict != "" {
		t.Errorf("expected empty verdict for pending solution, got %q", solutions[1].Verdict)
	}
}

func TestSolutionDetails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/solution/5":
			w.Write([]byte(`{"contestId":7}`))
		case "/contest/7/solutions/5/code":
			w.Write([]byte(`{"id":5,"verdictId":2,"sourceCode":"x","compilationError":"","errorTrace":"trace","internalSymbolIndex":"A","userId":42,"verdict":{"name":"Wrong answer"},"problem":{"id":10}}`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
			http.NotFound(w, r)
		}
	})

	details, err := c.SolutionDetails(context.Background(), 5)
	if err != nil {
		t.Fatalf("SolutionDetails: %v", err)
	}
	if details.ContestID != 7 || details.ProblemID != 10 || details.ProblemSlug != "A" {
		t.Errorf("unexpected details: %+v", details)
	}
	if details.Verdict != "Wrong answer" || details.ErrorTrace != "trace" {
		t.Errorf("unexpected verdict fields: %+v", details)
	}
}

func TestUserDataNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":0,"username":""}`))
	})

	data, err := c.UserData(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("UserData: %v", err)
	}
	if data != nil {
		t.Errorf("expected nil for unknown user, got %+v", data)
	}
}

func TestErrorStatusSurfaced(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	})

	if _, err := c.AllContests(context.Background(), 42); err == nil {
		t.Fatal("expected error on 403 response")
	}
}
