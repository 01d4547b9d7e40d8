package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ccingram94/galileo-sub000/internal/events"
	"github.com/ccingram94/galileo-sub000/internal/models"
	"github.com/ccingram94/galileo-sub000/internal/repositories"
	"github.com/ccingram94/galileo-sub000/internal/repositories/memory"
	"github.com/ccingram94/galileo-sub000/internal/scoring"
)

// fakeClock drives the engine's injected time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func twoSectionExam(t *testing.T) *models.Exam {
	t.Helper()
	exam := &models.Exam{Title: "AP Practice", PassingScore: 60, MaxAttempts: 3}
	err := exam.SetQuestionGroups([]models.QuestionGroup{
		{Title: "Section I", Type: models.MultipleChoice, TimeLimitMinutes: 45,
			Questions: []models.Question{
				{Type: models.MultipleChoice, Text: "q1", Options: []string{"a", "b"}, CorrectOption: 0},
				{Type: models.MultipleChoice, Text: "q2", Options: []string{"a", "b"}, CorrectOption: 1},
			}},
		{Title: "Section II", Type: models.FreeResponse, TimeLimitMinutes: 30,
			Questions: []models.Question{{Type: models.FreeResponse, Text: "fr"}}},
	})
	if err != nil {
		t.Fatalf("SetQuestionGroups: %v", err)
	}
	return exam
}

// newTestEngine builds an engine over a fresh attempt with a controllable
// clock anchored at the attempt's start.
func newTestEngine(t *testing.T, cfg Config) (*Engine, *fakeClock, repositories.AttemptStore, *events.MockEventPublisher) {
	t.Helper()
	ctx := context.Background()
	repo := memory.NewRepository()
	exam := twoSectionExam(t)
	if err := repo.Exam().Create(ctx, exam); err != nil {
		t.Fatalf("Create exam: %v", err)
	}

	sections := []models.Section{}
	groups, err := exam.QuestionGroups()
	if err != nil {
		t.Fatalf("QuestionGroups: %v", err)
	}
	for i, g := range groups {
		sections = append(sections, models.Section{
			Index: i, Title: g.Title, Type: g.Type,
			TimeLimitMinutes: g.TimeLimitMinutes, Questions: g.Questions,
		})
	}

	attempt, err := repo.Attempt().FindOrCreate(ctx, exam, sections, "student-1")
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}

	publisher := events.NewMockEventPublisher(testLogger())
	eng, err := New(attempt, repo.Attempt(), publisher, testLogger(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	clk := &fakeClock{now: attempt.StartedAt}
	eng.now = clk.Now
	return eng, clk, repo.Attempt(), publisher
}

func TestNewRejectsEmptySnapshot(t *testing.T) {
	attempt := &models.ExamAttempt{ID: 1, Status: models.AttemptInProgress}
	if err := attempt.SetSectionList(nil); err != nil {
		t.Fatalf("SetSectionList: %v", err)
	}
	_, err := New(attempt, memory.NewRepository().Attempt(), nil, testLogger(), Config{})
	if !errors.Is(err, ErrNoSections) {
		t.Errorf("err = %v, want ErrNoSections", err)
	}
}

func TestForwardOnlySectionNavigation(t *testing.T) {
	eng, _, _, _ := newTestEngine(t, Config{})

	eng.NavigateSection(1)
	if section, question := eng.Position(); section != 1 || question != 0 {
		t.Fatalf("position = (%d, %d), want (1, 0)", section, question)
	}

	// Backward is a silent no-op with AP-style section lock.
	eng.NavigateSection(-1)
	if section, _ := eng.Position(); section != 1 {
		t.Errorf("backward navigation moved to section %d, want locked at 1", section)
	}

	// Forward past the last section is also a no-op.
	eng.NavigateSection(1)
	if section, _ := eng.Position(); section != 1 {
		t.Errorf("forward past the end moved to section %d", section)
	}
}

func TestBackNavigationWhenAllowed(t *testing.T) {
	eng, _, _, _ := newTestEngine(t, Config{AllowBackNavigation: true})

	eng.NavigateSection(1)
	eng.NavigateSection(-1)
	if section, _ := eng.Position(); section != 0 {
		t.Errorf("section = %d, want back at 0", section)
	}
}

func TestQuestionNavigationClamps(t *testing.T) {
	eng, _, _, _ := newTestEngine(t, Config{})

	eng.NavigateQuestion(1)
	if _, question := eng.Position(); question != 1 {
		t.Fatalf("question = %d, want 1", question)
	}
	eng.NavigateQuestion(10)
	if _, question := eng.Position(); question != 1 {
		t.Errorf("question = %d, want clamped at last index 1", question)
	}
	eng.NavigateQuestion(-10)
	if _, question := eng.Position(); question != 0 {
		t.Errorf("question = %d, want clamped at 0", question)
	}
}

func TestTickAdvancesExpiredSection(t *testing.T) {
	eng, clk, _, _ := newTestEngine(t, Config{})
	ctx := context.Background()

	clk.Advance(44 * time.Minute)
	if err := eng.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if section, _ := eng.Position(); section != 0 {
		t.Fatalf("section advanced early, at %d", section)
	}

	clk.Advance(2 * time.Minute) // past the 45m limit
	if err := eng.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	section, question := eng.Position()
	if section != 1 || question != 0 {
		t.Errorf("position = (%d, %d), want auto-advanced to (1, 0)", section, question)
	}
	if got := eng.State(); got != StateActive {
		t.Errorf("state = %q, want active after auto-advance", got)
	}
}

func TestTickCascadesStaleResume(t *testing.T) {
	// A resume long after the schedule skips every expired section and
	// force-submits in one tick.
	eng, clk, store, publisher := newTestEngine(t, Config{})
	ctx := context.Background()

	clk.Advance(3 * time.Hour)
	if err := eng.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := eng.State(); got != StateSubmitted {
		t.Fatalf("state = %q, want submitted", got)
	}

	stored, err := store.GetByID(ctx, eng.attemptID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != models.AttemptCompleted {
		t.Errorf("stored status = %q, want completed", stored.Status)
	}
	if stored.EndReason == nil || *stored.EndReason != models.EndReasonTimeout {
		t.Errorf("end reason = %v, want %q", stored.EndReason, models.EndReasonTimeout)
	}
	// Time used is capped at the total limit even though far more elapsed.
	if stored.TimeUsedMinutes != 75 {
		t.Errorf("TimeUsedMinutes = %d, want capped 75", stored.TimeUsedMinutes)
	}

	// Timeout completions announce themselves as expiries, not submissions.
	published := publisher.GetPublishedEvents()
	if len(published) != 1 || published[0].Type != events.EventAttemptExpired {
		t.Errorf("published events = %+v, want one attempt.expired", published)
	}
}

func TestOneShotSectionWarning(t *testing.T) {
	eng, clk, _, _ := newTestEngine(t, Config{WarningThreshold: 5 * time.Minute})
	ctx := context.Background()

	clk.Advance(41 * time.Minute) // 4 minutes left in section 0
	if err := eng.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	select {
	case remaining := <-eng.Warnings():
		if remaining > 5*time.Minute || remaining <= 0 {
			t.Errorf("warning carried %v", remaining)
		}
	default:
		t.Fatal("no warning fired below the threshold")
	}

	// Repeated ticks in the same section never re-fire.
	clk.Advance(time.Minute)
	if err := eng.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	select {
	case <-eng.Warnings():
		t.Fatal("warning fired twice for one section")
	default:
	}

	// Entering the next section re-arms it.
	eng.NavigateSection(1)
	clk.Advance(32 * time.Minute) // section 1 ends at +75m; now at +74m
	if err := eng.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	select {
	case <-eng.Warnings():
	default:
		t.Fatal("warning did not re-arm for the next section")
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	eng, clk, _, publisher := newTestEngine(t, Config{Scoring: scoring.Config{PassingScore: 50}})
	ctx := context.Background()

	one := 0
	if err := eng.Answer(0, 0, models.Answer{Selected: &one}); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	clk.Advance(10 * time.Minute)

	if err := eng.Submit(ctx); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := eng.State(); got != StateSubmitted {
		t.Fatalf("state = %q, want submitted", got)
	}
	first := eng.Breakdown()
	if first == nil {
		t.Fatal("no breakdown after submit")
	}

	// Second submit: no error, no second event, same breakdown.
	if err := eng.Submit(ctx); err != nil {
		t.Fatalf("repeat Submit: %v", err)
	}
	if got := eng.Breakdown(); got != first {
		t.Error("repeat submit replaced the breakdown")
	}
	if got := len(publisher.GetPublishedEvents()); got != 1 {
		t.Errorf("published %d events, want 1", got)
	}

	// Frozen: answers and navigation reject or no-op.
	if err := eng.Answer(0, 1, models.Answer{Selected: &one}); !errors.Is(err, ErrSubmitted) {
		t.Errorf("Answer after submit = %v, want ErrSubmitted", err)
	}
	eng.NavigateSection(1)
	if section, _ := eng.Position(); section != 0 {
		t.Error("navigation moved after submit")
	}
}

func TestSubmitRaceAdoptsWinner(t *testing.T) {
	eng, clk, store, _ := newTestEngine(t, Config{Scoring: scoring.Config{PassingScore: 50}})
	ctx := context.Background()

	// Another session completes the attempt out from under this engine.
	winner := &models.ScoreBreakdown{Percentage: 91, Passed: true}
	if _, err := store.Complete(ctx, eng.attemptID, nil, winner, 20, models.EndReasonSubmitted); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	clk.Advance(5 * time.Minute)
	if err := eng.Submit(ctx); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := eng.State(); got != StateSubmitted {
		t.Fatalf("state = %q, want submitted", got)
	}
	bd := eng.Breakdown()
	if bd == nil || bd.Percentage != 91 {
		t.Errorf("breakdown = %+v, want the winner's 91%%", bd)
	}
}

func TestAutosaveDebounceAndFloor(t *testing.T) {
	eng, clk, store, _ := newTestEngine(t, Config{
		AutosaveDebounce: 2 * time.Second,
		AutosaveInterval: 30 * time.Second,
	})
	ctx := context.Background()
	one := 1

	if err := eng.Answer(0, 0, models.Answer{Selected: &one}); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	// Under the debounce window: no save yet.
	clk.Advance(time.Second)
	eng.maybeAutosave(ctx)
	stored, _ := store.GetByID(ctx, eng.attemptID)
	if stored.LastSavedAt != nil {
		t.Fatal("saved before the debounce elapsed")
	}

	// Debounce elapsed: flush happens.
	clk.Advance(2 * time.Second)
	eng.maybeAutosave(ctx)
	stored, _ = store.GetByID(ctx, eng.attemptID)
	if stored.LastSavedAt == nil {
		t.Fatal("no save after the debounce elapsed")
	}
	if got := eng.SaveStatus(); got != SaveStatusSaved {
		t.Errorf("save status = %q, want saved", got)
	}

	// Continuous editing: each edit resets the debounce, but the interval
	// floor forces a save anyway.
	before := *stored.LastSavedAt
	for i := 0; i < 31; i++ {
		if err := eng.Answer(0, 1, models.Answer{Selected: &one}); err != nil {
			t.Fatalf("Answer: %v", err)
		}
		clk.Advance(time.Second)
		eng.maybeAutosave(ctx)
	}
	stored, _ = store.GetByID(ctx, eng.attemptID)
	if !stored.LastSavedAt.After(before) {
		t.Error("interval floor never forced a save during continuous editing")
	}
}

// failingStore wraps the memory store and fails SaveProgress on demand.
type failingStore struct {
	repositories.AttemptStore
	fail bool
}

func (s *failingStore) SaveProgress(ctx context.Context, attemptID uint, update repositories.ProgressUpdate) error {
	if s.fail {
		return errors.New("connection refused")
	}
	return s.AttemptStore.SaveProgress(ctx, attemptID, update)
}

func TestFlushFailureSetsErrorAndRetries(t *testing.T) {
	eng, clk, store, _ := newTestEngine(t, Config{})
	ctx := context.Background()
	failing := &failingStore{AttemptStore: store, fail: true}
	eng.store = failing

	one := 1
	if err := eng.Answer(0, 0, models.Answer{Selected: &one}); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	clk.Advance(5 * time.Second)

	if err := eng.Flush(ctx); err == nil {
		t.Fatal("Flush succeeded against a failing store")
	}
	if got := eng.SaveStatus(); got != SaveStatusError {
		t.Errorf("save status = %q, want error", got)
	}

	// The edit stays dirty; the next flush lands it.
	failing.fail = false
	if err := eng.Flush(ctx); err != nil {
		t.Fatalf("retry Flush: %v", err)
	}
	if got := eng.SaveStatus(); got != SaveStatusSaved {
		t.Errorf("save status after retry = %q, want saved", got)
	}
	stored, _ := store.GetByID(ctx, eng.attemptID)
	answers, _ := stored.AnswerMap()
	if _, ok := answers["0:0"]; !ok {
		t.Error("answer lost across the failed save")
	}
}

func TestFlushOnCompletedAttemptFreezes(t *testing.T) {
	eng, _, store, _ := newTestEngine(t, Config{})
	ctx := context.Background()

	one := 1
	if err := eng.Answer(0, 0, models.Answer{Selected: &one}); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if _, err := store.Complete(ctx, eng.attemptID, nil, &models.ScoreBreakdown{}, 5, models.EndReasonSubmitted); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if err := eng.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := eng.State(); got != StateSubmitted {
		t.Errorf("state = %q, want submitted after flushing a completed attempt", got)
	}
}

func TestResumeRestoresPosition(t *testing.T) {
	eng, clk, store, _ := newTestEngine(t, Config{})
	ctx := context.Background()

	eng.NavigateSection(1)
	if err := eng.Answer(1, 0, models.Answer{Responses: map[string]string{"0:0": "draft"}}); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	clk.Advance(5 * time.Second)
	if err := eng.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	stored, err := store.GetByID(ctx, eng.attemptID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	resumed, err := New(stored, store, nil, testLogger(), Config{})
	if err != nil {
		t.Fatalf("New from stored record: %v", err)
	}
	section, question := resumed.Position()
	if section != 1 || question != 0 {
		t.Errorf("resumed position = (%d, %d), want (1, 0)", section, question)
	}
	if _, ok := resumed.answers["1:0"]; !ok {
		t.Error("resumed engine lost the saved draft answer")
	}
}
