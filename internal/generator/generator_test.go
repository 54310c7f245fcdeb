package generator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spi-u/gpt-bot/internal/logger"
	"github.com/spi-u/gpt-bot/internal/types"
)

type fakeTemplates struct {
	mu        sync.Mutex
	templates map[string]string
}

func (f *fakeTemplates) GetTemplate(_ context.Context, name string) (*types.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.templates[name]
	if !ok {
		return nil, fmt.Errorf("template not found: %s", name)
	}
	return &types.Template{Name: name, Template: body}, nil
}

type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	gens   map[int64]*types.Generation
}

func newFakeStore() *fakeStore {
	return &fakeStore{gens: map[int64]*types.Generation{}}
}

func (s *fakeStore) Add(_ context.Context, gen *types.Generation) (*types.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	stored := *gen
	stored.ID = s.nextID
	stored.CreatedAt = time.Now()
	s.gens[stored.ID] = &stored
	copied := stored
	return &copied, nil
}

func (s *fakeStore) FindByFingerprint(_ context.Context, problemID int64, level int, solutionID int64) ([]*types.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Generation
	for _, gen := range s.gens {
		if gen.ProblemID == problemID && gen.GenerationLevel == level &&
			gen.SolutionID == solutionID && gen.Status != types.StatusFailed {
			copied := *gen
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *fakeStore) GetGeneration(_ context.Context, id int64) (*types.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen, ok := s.gens[id]
	if !ok {
		return nil, nil
	}
	copied := *gen
	return &copied, nil
}

func (s *fakeStore) SetStatusAndResult(_ context.Context, id int64, status types.GenerationStatus, input, output string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen, ok := s.gens[id]
	if !ok || gen.Status != types.StatusInProgress {
		return nil
	}
	gen.Status = status
	gen.Input = input
	gen.Output = output
	return nil
}

func (s *fakeStore) DialogChain(_ context.Context, id int64) ([]types.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var dialog []types.ChatMessage
	for gen, ok := s.gens[id]; ok; gen, ok = s.gens[gen.PreviousGenerationID] {
		dialog = append([]types.ChatMessage{
			{Text: gen.Input, IsUser: true},
			{Text: gen.Output, IsUser: false},
		}, dialog...)
		if gen.PreviousGenerationID == 0 {
			break
		}
	}
	return dialog, nil
}

func (s *fakeStore) remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.gens, id)
}

func (s *fakeStore) expire(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen, ok := s.gens[id]; ok && gen.Status == types.StatusInProgress {
		gen.Status = types.StatusFailed
	}
}

type fakeChat struct {
	mu       sync.Mutex
	reply    string
	err      error
	gate     chan struct{} // when non-nil, Chat blocks until closed
	calls    int32
	lastMsgs []types.ChatMessage
}

func (c *fakeChat) Chat(_ context.Context, messages []types.ChatMessage) (string, error) {
	c.mu.Lock()
	gate := c.gate
	c.lastMsgs = append([]types.ChatMessage(nil), messages...)
	c.mu.Unlock()
	atomic.AddInt32(&c.calls, 1)
	if gate != nil {
		<-gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reply, c.err
}

func (c *fakeChat) callCount() int32 { return atomic.LoadInt32(&c.calls) }

func newTestGenerator(tpls map[string]string, store *fakeStore, chat *fakeChat) *Generator {
	return New(&fakeTemplates{templates: tpls}, store, chat, 5*time.Millisecond, logger.NewNop())
}

func waitForTerminal(t *testing.T, store *fakeStore, id int64) *types.Generation {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		gen, err := store.GetGeneration(context.Background(), id)
		if err != nil {
			t.Fatalf("GetGeneration: %v", err)
		}
		if gen != nil && gen.Status != types.StatusInProgress {
			return gen
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("generation %d never reached a terminal status", id)
	return nil
}

func hintTask() Task {
	return Task{
		ProblemID:       1,
		SolutionID:      1,
		GenerationLevel: 1,
		TemplateName:    "hint",
		TemplateVariables: types.TemplateVariables{
			Problem: "two sum",
		},
	}
}

func TestSubmitRunsPipeline(t *testing.T) {
	store := newFakeStore()
	chat := &fakeChat{reply: "think about hash maps"}
	gen := newTestGenerator(map[string]string{"hint": "Explain: {{problem}}"}, store, chat)

	res, err := gen.Submit(context.Background(), hintTask(), false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.IsNew {
		t.Fatal("first submission should be new")
	}

	done := waitForTerminal(t, store, res.GenerationID)
	if done.Status != types.StatusReady {
		t.Fatalf("unexpected status: %s", done.Status)
	}
	if done.Input != "Explain: two sum" {
		t.Fatalf("unexpected rendered input: %q", done.Input)
	}
	if done.Output != "think about hash maps" {
		t.Fatalf("unexpected output: %q", done.Output)
	}
}

func TestSubmitDeduplicatesConcurrentSameFingerprint(t *testing.T) {
	store := newFakeStore()
	gate := make(chan struct{})
	chat := &fakeChat{reply: "ok", gate: gate}
	gen := newTestGenerator(map[string]string{"hint": "{{problem}}"}, store, chat)

	const submitters = 10
	var wg sync.WaitGroup
	results := make([]Result, submitters)
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := gen.Submit(context.Background(), hintTask(), false)
			if err != nil {
				t.Errorf("Submit: %v", err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()
	close(gate)

	newCount := 0
	for _, res := range results {
		if res.GenerationID != results[0].GenerationID {
			t.Fatalf("submitters disagree on id: %d vs %d", res.GenerationID, results[0].GenerationID)
		}
		if res.IsNew {
			newCount++
		}
	}
	if newCount != 1 {
		t.Fatalf("expected exactly one new pipeline, got %d", newCount)
	}

	waitForTerminal(t, store, results[0].GenerationID)
	if got := chat.callCount(); got != 1 {
		t.Fatalf("expected one chat call, got %d", got)
	}
}

func TestSubmitDedupSurvivesReadyStatus(t *testing.T) {
	store := newFakeStore()
	chat := &fakeChat{reply: "ok"}
	gen := newTestGenerator(map[string]string{"hint": "{{problem}}"}, store, chat)

	first, err := gen.Submit(context.Background(), hintTask(), false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForTerminal(t, store, first.GenerationID)

	second, err := gen.Submit(context.Background(), hintTask(), false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if second.IsNew || second.GenerationID != first.GenerationID {
		t.Fatalf("READY record should still dedup: %+v vs %+v", second, first)
	}
}

func TestSubmitDifferentFingerprintsDoNotCoalesce(t *testing.T) {
	store := newFakeStore()
	chat := &fakeChat{reply: "ok"}
	gen := newTestGenerator(map[string]string{"hint": "{{problem}}"}, store, chat)

	base := hintTask()
	variants := []Task{base, base, base}
	variants[1].SolutionID = 99
	variants[2].GenerationLevel = 7

	seen := map[int64]bool{}
	for _, task := range variants {
		res, err := gen.Submit(context.Background(), task, false)
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if !res.IsNew {
			t.Fatalf("distinct fingerprint coalesced: %+v", res)
		}
		if seen[res.GenerationID] {
			t.Fatalf("duplicate id across fingerprints: %d", res.GenerationID)
		}
		seen[res.GenerationID] = true
	}
}

func TestSubmitAllowOnlyExisting(t *testing.T) {
	store := newFakeStore()
	chat := &fakeChat{reply: "ok"}
	gen := newTestGenerator(map[string]string{"hint": "{{problem}}"}, store, chat)

	_, err := gen.Submit(context.Background(), hintTask(), true)
	if !errors.Is(err, ErrGenerationNotFound) {
		t.Fatalf("expected ErrGenerationNotFound, got %v", err)
	}

	first, err := gen.Submit(context.Background(), hintTask(), false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Once a record exists, a restricted submission attaches to it.
	second, err := gen.Submit(context.Background(), hintTask(), true)
	if err != nil {
		t.Fatalf("Submit with allowOnlyExisting: %v", err)
	}
	if second.IsNew || second.GenerationID != first.GenerationID {
		t.Fatalf("expected attach to %d, got %+v", first.GenerationID, second)
	}
}

func TestFailedRecordDoesNotBlockResubmission(t *testing.T) {
	store := newFakeStore()
	chat := &fakeChat{reply: "", err: errors.New("model overloaded")}
	gen := newTestGenerator(map[string]string{"hint": "{{problem}}"}, store, chat)

	first, err := gen.Submit(context.Background(), hintTask(), false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	failed := waitForTerminal(t, store, first.GenerationID)
	if failed.Status != types.StatusFailed {
		t.Fatalf("unexpected status: %s", failed.Status)
	}
	if failed.Input != "" || failed.Output != "" {
		t.Fatalf("failed record should have empty input/output: %+v", failed)
	}

	chat.mu.Lock()
	chat.err = nil
	chat.reply = "second try"
	chat.mu.Unlock()

	second, err := gen.Submit(context.Background(), hintTask(), false)
	if err != nil {
		t.Fatalf("resubmission after failure: %v", err)
	}
	if !second.IsNew || second.GenerationID == first.GenerationID {
		t.Fatalf("failed record blocked resubmission: %+v", second)
	}
}

func TestPipelineTemplateMissingMarksFailedWithoutChatCall(t *testing.T) {
	store := newFakeStore()
	chat := &fakeChat{reply: "ok"}
	gen := newTestGenerator(map[string]string{}, store, chat)

	res, err := gen.Submit(context.Background(), hintTask(), false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := waitForTerminal(t, store, res.GenerationID)
	if done.Status != types.StatusFailed {
		t.Fatalf("unexpected status: %s", done.Status)
	}
	if chat.callCount() != 0 {
		t.Fatal("chat engine must not be called when the template is missing")
	}
}

func TestPipelineIncludesDialogChain(t *testing.T) {
	store := newFakeStore()
	chat := &fakeChat{reply: "follow-up answer"}
	gen := newTestGenerator(map[string]string{"freeText": "{{userMessage}}"}, store, chat)

	root, err := store.Add(context.Background(), &types.Generation{
		ProblemID:       1,
		GenerationLevel: 1,
		Input:           "root question",
		Output:          "root answer",
		Status:          types.StatusReady,
	})
	if err != nil {
		t.Fatalf("seed root: %v", err)
	}

	task := Task{
		PreviousGenerationID: root.ID,
		ProblemID:            1,
		GenerationLevel:      2,
		TemplateName:         "freeText",
		TemplateVariables:    types.TemplateVariables{UserMessage: "why O(n)?"},
	}
	res, err := gen.Submit(context.Background(), task, false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForTerminal(t, store, res.GenerationID)

	chat.mu.Lock()
	msgs := chat.lastMsgs
	chat.mu.Unlock()

	want := []types.ChatMessage{
		{Text: "root question", IsUser: true},
		{Text: "root answer", IsUser: false},
		{Text: "why O(n)?", IsUser: true},
	}
	if len(msgs) != len(want) {
		t.Fatalf("unexpected dialog length: %d (%+v)", len(msgs), msgs)
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Fatalf("dialog[%d] = %+v, want %+v", i, msgs[i], want[i])
		}
	}
}

func TestRegenerateAlwaysProducesNewRecord(t *testing.T) {
	store := newFakeStore()
	chat := &fakeChat{reply: "ok"}
	gen := newTestGenerator(map[string]string{"hint": "{{problem}}"}, store, chat)

	first, err := gen.Submit(context.Background(), hintTask(), false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForTerminal(t, store, first.GenerationID)

	re, err := gen.Regenerate(context.Background(), first.GenerationID, false)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if !re.IsNew {
		t.Fatal("regeneration must start a new pipeline")
	}
	if re.GenerationID == first.GenerationID {
		t.Fatal("regeneration coalesced with its source record")
	}

	redone := waitForTerminal(t, store, re.GenerationID)
	if redone.TemplateName != "hint" {
		t.Fatalf("regenerated task lost its template: %+v", redone)
	}
	if redone.ProblemID != 1 || redone.GenerationLevel != 1 || redone.SolutionID != 1 {
		t.Fatalf("regenerated task lost its fingerprint: %+v", redone)
	}
}

func TestConcurrentRegenerateNeverCoalesces(t *testing.T) {
	store := newFakeStore()
	chat := &fakeChat{reply: "ok"}
	gen := newTestGenerator(map[string]string{"hint": "{{problem}}"}, store, chat)

	first, err := gen.Submit(context.Background(), hintTask(), false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForTerminal(t, store, first.GenerationID)

	// Hold both replayed pipelines in flight so the two calls overlap while
	// their records are still IN_PROGRESS.
	gate := make(chan struct{})
	chat.mu.Lock()
	chat.gate = gate
	chat.mu.Unlock()

	results := make(chan Result, 2)
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := gen.Regenerate(context.Background(), first.GenerationID, false)
			results <- res
			errs <- err
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Regenerate: %v", err)
		}
	}

	seen := map[int64]bool{first.GenerationID: true}
	for res := range results {
		if !res.IsNew {
			t.Fatal("every regeneration must start a new pipeline")
		}
		if seen[res.GenerationID] {
			t.Fatalf("regeneration coalesced on id %d", res.GenerationID)
		}
		seen[res.GenerationID] = true
		gen, err := store.GetGeneration(context.Background(), res.GenerationID)
		if err != nil {
			t.Fatalf("GetGeneration: %v", err)
		}
		if gen == nil || gen.Status != types.StatusInProgress {
			t.Fatalf("gated regeneration left IN_PROGRESS early: %+v", gen)
		}
	}

	close(gate)
	for id := range seen {
		waitForTerminal(t, store, id)
	}
}

func TestRegenerateMissingGeneration(t *testing.T) {
	store := newFakeStore()
	gen := newTestGenerator(map[string]string{}, store, &fakeChat{})

	_, err := gen.Regenerate(context.Background(), 404, false)
	if !errors.Is(err, ErrGenerationNotFound) {
		t.Fatalf("expected ErrGenerationNotFound, got %v", err)
	}
}

func TestWaitForGeneration(t *testing.T) {
	store := newFakeStore()
	chat := &fakeChat{reply: "done"}
	gen := newTestGenerator(map[string]string{"hint": "{{problem}}"}, store, chat)

	res, err := gen.Submit(context.Background(), hintTask(), false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got, err := gen.WaitForGeneration(context.Background(), res.GenerationID)
	if err != nil {
		t.Fatalf("WaitForGeneration: %v", err)
	}
	if got.Status != types.StatusReady || got.Output != "done" {
		t.Fatalf("unexpected generation: %+v", got)
	}
}

func TestWaitForGenerationFailed(t *testing.T) {
	store := newFakeStore()
	chat := &fakeChat{err: errors.New("quota exceeded")}
	gen := newTestGenerator(map[string]string{"hint": "{{problem}}"}, store, chat)

	res, err := gen.Submit(context.Background(), hintTask(), false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, err = gen.WaitForGeneration(context.Background(), res.GenerationID)
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
}

func TestWaitForGenerationMissing(t *testing.T) {
	store := newFakeStore()
	gen := newTestGenerator(map[string]string{}, store, &fakeChat{})

	_, err := gen.WaitForGeneration(context.Background(), 404)
	if !errors.Is(err, ErrGenerationNotFound) {
		t.Fatalf("expected ErrGenerationNotFound, got %v", err)
	}
}

func TestWaitForGenerationRecordDisappears(t *testing.T) {
	store := newFakeStore()
	gate := make(chan struct{})
	defer close(gate)
	chat := &fakeChat{reply: "ok", gate: gate}
	gen := newTestGenerator(map[string]string{"hint": "{{problem}}"}, store, chat)

	res, err := gen.Submit(context.Background(), hintTask(), false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := gen.WaitForGeneration(context.Background(), res.GenerationID)
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	store.remove(res.GenerationID)

	select {
	case err := <-errc:
		if !errors.Is(err, ErrGenerationNotFound) {
			t.Fatalf("expected ErrGenerationNotFound, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never observed the removed record")
	}
}

func TestExpiredRecordUnblocksFingerprint(t *testing.T) {
	store := newFakeStore()
	gate := make(chan struct{})
	defer close(gate)
	chat := &fakeChat{reply: "ok", gate: gate}
	gen := newTestGenerator(map[string]string{"hint": "{{problem}}"}, store, chat)

	first, err := gen.Submit(context.Background(), hintTask(), false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Simulate the store's lazy expiry sweep forcing the stuck record out.
	store.expire(first.GenerationID)

	second, err := gen.Submit(context.Background(), hintTask(), false)
	if err != nil {
		t.Fatalf("Submit after expiry: %v", err)
	}
	if !second.IsNew || second.GenerationID == first.GenerationID {
		t.Fatalf("expired record still blocks its fingerprint: %+v", second)
	}
}

func TestTerminalStatusIsFinal(t *testing.T) {
	store := newFakeStore()
	chat := &fakeChat{reply: "ok"}
	gen := newTestGenerator(map[string]string{"hint": "{{problem}}"}, store, chat)

	res, err := gen.Submit(context.Background(), hintTask(), false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := waitForTerminal(t, store, res.GenerationID)

	// A late terminal write (e.g. a pipeline racing the expiry sweep) must
	// not change an already-terminal record.
	if err := store.SetStatusAndResult(context.Background(), res.GenerationID, types.StatusFailed, "", ""); err != nil {
		t.Fatalf("SetStatusAndResult: %v", err)
	}
	after, err := store.GetGeneration(context.Background(), res.GenerationID)
	if err != nil {
		t.Fatalf("GetGeneration: %v", err)
	}
	if after.Status != done.Status || after.Output != done.Output {
		t.Fatalf("terminal record was rewritten: %+v", after)
	}
}

func TestRegenerateRestoresTemplateVariables(t *testing.T) {
	store := newFakeStore()
	chat := &fakeChat{reply: "ok"}
	gen := newTestGenerator(map[string]string{"hint": "P={{problem}} S={{solution}}"}, store, chat)

	task := hintTask()
	task.TemplateVariables = types.TemplateVariables{Problem: "p1", Solution: "s1"}
	first, err := gen.Submit(context.Background(), task, false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForTerminal(t, store, first.GenerationID)

	re, err := gen.Regenerate(context.Background(), first.GenerationID, false)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	redone := waitForTerminal(t, store, re.GenerationID)
	if redone.Input != "P=p1 S=s1" {
		t.Fatalf("replayed variables did not render identically: %q", redone.Input)
	}
}

var _ GenerationRepository = (*fakeStore)(nil)
