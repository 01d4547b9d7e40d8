// Package engine drives one in-progress exam attempt: navigation,
// tick-driven expiry, autosave cadence and submission. The engine is a
// working copy over the attempt store — every durable fact lives in the
// store, and a fresh engine rebuilt from the stored record resumes
// exactly where the previous one stopped.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ccingram94/galileo-sub000/internal/clock"
	"github.com/ccingram94/galileo-sub000/internal/events"
	"github.com/ccingram94/galileo-sub000/internal/models"
	"github.com/ccingram94/galileo-sub000/internal/repositories"
	"github.com/ccingram94/galileo-sub000/internal/scoring"
)

// State of the attempt session.
type State string

const (
	// StateActive: the student is answering; position is (section, question).
	StateActive State = "active"
	// StateSectionExpired: the current section's time ran out. Transient —
	// the same tick advances to the next section.
	StateSectionExpired State = "section_expired"
	// StateExamExpired: total time ran out but the forced submission has
	// not landed yet. The engine retries submission from this state.
	StateExamExpired State = "exam_expired"
	// StateSubmitted: the attempt is frozen and scored. Terminal.
	StateSubmitted State = "submitted"
)

// SaveStatus is the non-blocking autosave indicator shown to the student.
type SaveStatus string

const (
	SaveStatusSaving SaveStatus = "saving"
	SaveStatusSaved  SaveStatus = "saved"
	SaveStatusError  SaveStatus = "error"
)

var (
	// ErrSubmitted: the session is over; answers and navigation are frozen.
	ErrSubmitted = errors.New("attempt already submitted")
	// ErrNoSections: an attempt with an empty section snapshot cannot run.
	ErrNoSections = errors.New("attempt has no sections")
)

// Config tunes the session cadence and scoring policy.
type Config struct {
	// AutosaveDebounce fires a save shortly after the last edit.
	AutosaveDebounce time.Duration
	// AutosaveInterval bounds data loss during continuous editing.
	AutosaveInterval time.Duration
	// WarningThreshold triggers the one-shot per-section time warning.
	WarningThreshold time.Duration
	// AllowBackNavigation permits returning to earlier sections. AP-format
	// exams leave this false: a completed section is locked.
	AllowBackNavigation bool

	Scoring scoring.Config
}

func (c *Config) withDefaults() {
	if c.AutosaveDebounce <= 0 {
		c.AutosaveDebounce = 2 * time.Second
	}
	if c.AutosaveInterval <= 0 {
		c.AutosaveInterval = 30 * time.Second
	}
	if c.WarningThreshold <= 0 {
		c.WarningThreshold = 5 * time.Minute
	}
}

// Engine is the attempt state machine. All exported methods are safe for
// concurrent use; the tick and autosave loops share the one mutex.
type Engine struct {
	mu sync.Mutex

	store     repositories.AttemptStore
	publisher events.EventPublisher
	logger    *slog.Logger
	cfg       Config

	attemptID     uint
	examID        uint
	studentID     string
	attemptNumber int
	startedAt     time.Time
	sections      []models.Section

	state       State
	sectionIdx  int
	questionIdx int
	answers     models.AnswerMap
	breakdown   *models.ScoreBreakdown

	dirty      bool
	lastEdit   time.Time
	lastSave   time.Time
	saveStatus SaveStatus

	warned   bool
	warnings chan time.Duration

	// now is replaceable in tests; everything time-dependent reads it.
	now func() time.Time
}

// New builds an engine over a stored attempt. The stored record wins over
// any in-memory default: its answer map, navigation pointer and section
// snapshot seed the session.
func New(attempt *models.ExamAttempt, store repositories.AttemptStore, publisher events.EventPublisher, logger *slog.Logger, cfg Config) (*Engine, error) {
	cfg.withDefaults()

	sections, err := attempt.SectionList()
	if err != nil {
		return nil, fmt.Errorf("failed to decode attempt sections: %w", err)
	}
	if len(sections) == 0 {
		return nil, ErrNoSections
	}
	answers, err := attempt.AnswerMap()
	if err != nil {
		return nil, fmt.Errorf("failed to decode attempt answers: %w", err)
	}

	e := &Engine{
		store:         store,
		publisher:     publisher,
		logger:        logger,
		cfg:           cfg,
		attemptID:     attempt.ID,
		examID:        attempt.ExamID,
		studentID:     attempt.StudentID,
		attemptNumber: attempt.AttemptNumber,
		startedAt:     attempt.StartedAt,
		sections:      sections,
		state:         StateActive,
		sectionIdx:    clamp(attempt.CurrentSection, 0, len(sections)-1),
		answers:       answers,
		saveStatus:    SaveStatusSaved,
		warnings:      make(chan time.Duration, 1),
		now:           time.Now,
	}
	e.questionIdx = clamp(attempt.CurrentQuestion, 0, len(sections[e.sectionIdx].Questions)-1)
	e.lastSave = e.now()

	if attempt.Status == models.AttemptCompleted {
		e.state = StateSubmitted
		e.breakdown, _ = attempt.ScoreBreakdown()
	}
	return e, nil
}

// State returns the current machine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Position returns the current (section, question) pointer.
func (e *Engine) Position() (section, question int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sectionIdx, e.questionIdx
}

// SaveStatus returns the autosave indicator.
func (e *Engine) SaveStatus() SaveStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saveStatus
}

// Breakdown returns the score once submitted, nil before.
func (e *Engine) Breakdown() *models.ScoreBreakdown {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.breakdown
}

// Warnings delivers at most one low-time signal per section, carrying the
// section time remaining when the threshold was crossed.
func (e *Engine) Warnings() <-chan time.Duration {
	return e.warnings
}

// TimeRemaining reads the clock for the current position.
func (e *Engine) TimeRemaining() clock.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return clock.Remaining(e.sections, e.sectionIdx, e.startedAt, e.now())
}

// Answer records one answer and schedules autosave. The key addresses
// (section, question); multiple-choice answers carry Selected, free
// response carries Responses keyed by (part, subpart).
func (e *Engine) Answer(sectionIdx, questionIdx int, answer models.Answer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateSubmitted {
		return ErrSubmitted
	}

	answer.UpdatedAt = e.now()
	e.answers[models.AnswerKey(sectionIdx, questionIdx)] = answer
	e.dirty = true
	e.lastEdit = answer.UpdatedAt
	return nil
}

// NavigateQuestion moves the question pointer by delta, clamped to the
// current section. Out-of-range moves are no-ops, never errors.
func (e *Engine) NavigateQuestion(delta int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateSubmitted {
		return
	}
	next := clamp(e.questionIdx+delta, 0, len(e.sections[e.sectionIdx].Questions)-1)
	if next != e.questionIdx {
		e.questionIdx = next
		e.dirty = true
	}
}

// NavigateSection moves the section pointer by delta. Forward moves stop
// at the last section. Backward moves are no-ops unless the exam permits
// back navigation — AP-format progression locks completed sections.
func (e *Engine) NavigateSection(delta int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateSubmitted {
		return
	}
	switch {
	case delta > 0 && e.sectionIdx < len(e.sections)-1:
		e.enterSection(e.sectionIdx + 1)
	case delta < 0 && e.cfg.AllowBackNavigation && e.sectionIdx > 0:
		e.enterSection(e.sectionIdx - 1)
	}
}

// enterSection moves the pointer and resets the per-section one-shots.
// Callers hold the mutex.
func (e *Engine) enterSection(idx int) {
	e.sectionIdx = idx
	e.questionIdx = 0
	e.warned = false
	e.dirty = true
}

// Tick advances the machine against the clock. Expired non-final sections
// auto-advance; expiry of the final section forces submission. Expiry is
// an expected transition, never an error — the only error Tick returns is
// a failed forced submission, which the next tick retries.
func (e *Engine) Tick(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateSubmitted {
		return nil
	}

	now := e.now()
	// A resumed stale attempt may be several sections past its schedule;
	// cascade until the pointer lands on a section with time left.
	for clock.SectionRemaining(e.sections, e.sectionIdx, e.startedAt, now) <= 0 {
		if e.sectionIdx >= len(e.sections)-1 {
			e.state = StateExamExpired
			return e.submitLocked(ctx, models.EndReasonTimeout)
		}
		e.state = StateSectionExpired
		e.enterSection(e.sectionIdx + 1)
		e.state = StateActive
	}

	if !e.warned {
		remaining := clock.SectionRemaining(e.sections, e.sectionIdx, e.startedAt, now)
		if remaining <= e.cfg.WarningThreshold {
			e.warned = true
			select {
			case e.warnings <- remaining:
			default:
			}
		}
	}
	return nil
}

// Submit finalizes the attempt on the student's action. Racing with a
// timer-forced submission is safe: the store's Complete is idempotent and
// the loser adopts the winner's record.
func (e *Engine) Submit(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submitLocked(ctx, models.EndReasonSubmitted)
}

func (e *Engine) submitLocked(ctx context.Context, endReason string) error {
	if e.state == StateSubmitted {
		return nil
	}

	now := e.now()
	breakdown := scoring.Score(e.sections, e.answers, e.cfg.Scoring)
	timeUsed := int(now.Sub(e.startedAt).Minutes())
	if limit := int(clock.TotalLimit(e.sections).Minutes()); timeUsed > limit {
		timeUsed = limit
	}

	completed, err := e.store.Complete(ctx, e.attemptID, e.answers, breakdown, timeUsed, endReason)
	if errors.Is(err, repositories.ErrAlreadyCompleted) {
		// The other trigger won the race. Adopt its result.
		if completed != nil {
			if bd, decodeErr := completed.ScoreBreakdown(); decodeErr == nil {
				breakdown = bd
			}
			if completed.EndReason != nil {
				endReason = *completed.EndReason
			}
		}
	} else if err != nil {
		// Leave the attempt in progress with answers intact; the student
		// (or the next tick) retries.
		e.saveStatus = SaveStatusError
		e.logger.ErrorContext(ctx, "Failed to complete attempt",
			"error", err,
			"attempt_id", e.attemptID,
			"end_reason", endReason)
		return fmt.Errorf("failed to complete attempt %d: %w", e.attemptID, err)
	}

	e.state = StateSubmitted
	e.breakdown = breakdown
	e.dirty = false
	e.saveStatus = SaveStatusSaved
	e.publishCompleted(ctx, endReason, breakdown)
	return nil
}

func (e *Engine) publishCompleted(ctx context.Context, endReason string, breakdown *models.ScoreBreakdown) {
	if e.publisher == nil {
		return
	}
	data := &events.AttemptCompletedEvent{
		AttemptID:     e.attemptID,
		ExamID:        e.examID,
		StudentID:     e.studentID,
		AttemptNumber: e.attemptNumber,
		EndReason:     endReason,
		CompletedAt:   e.now(),
	}
	if breakdown != nil {
		data.Percentage = breakdown.Percentage
		data.Pending = breakdown.PendingQuestions
	}
	eventType := events.EventAttemptSubmitted
	if endReason == models.EndReasonTimeout {
		eventType = events.EventAttemptExpired
	}
	if err := e.publisher.Publish(ctx, events.NewEvent(eventType, data)); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish attempt completion event",
			"error", err,
			"attempt_id", e.attemptID)
	}
}

// maybeAutosave flushes when the debounce-after-edit or the periodic floor
// is due. Failures set the error indicator and keep the state dirty; the
// next cycle retries.
func (e *Engine) maybeAutosave(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateSubmitted || !e.dirty {
		return
	}
	now := e.now()
	if now.Sub(e.lastEdit) >= e.cfg.AutosaveDebounce || now.Sub(e.lastSave) >= e.cfg.AutosaveInterval {
		e.flushLocked(ctx)
	}
}

// Flush persists the working copy immediately.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateSubmitted || !e.dirty {
		return nil
	}
	return e.flushLocked(ctx)
}

func (e *Engine) flushLocked(ctx context.Context) error {
	e.saveStatus = SaveStatusSaving
	section, question := e.sectionIdx, e.questionIdx
	update := repositories.ProgressUpdate{
		Answers:         e.answers.Clone(),
		CurrentSection:  &section,
		CurrentQuestion: &question,
		SavedAt:         e.now(),
	}

	err := e.store.SaveProgress(ctx, e.attemptID, update)
	switch {
	case errors.Is(err, repositories.ErrAlreadyCompleted):
		// Completed out from under us (racing submit from another tab).
		e.state = StateSubmitted
		e.dirty = false
		e.saveStatus = SaveStatusSaved
		return nil
	case err != nil:
		e.saveStatus = SaveStatusError
		e.logger.WarnContext(ctx, "Autosave failed, will retry",
			"error", err,
			"attempt_id", e.attemptID)
		return err
	}

	e.dirty = false
	e.lastSave = update.SavedAt
	e.saveStatus = SaveStatusSaved
	return nil
}

// Run drives the session until submission or cancellation. The clock tick
// and the autosave check are independent timers: the tick reads time and
// state, the autosave writes — they share no countdown variable.
func (e *Engine) Run(ctx context.Context) error {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	save := time.NewTicker(500 * time.Millisecond)
	defer save.Stop()

	for {
		select {
		case <-ctx.Done():
			// Best-effort final save so a closed session loses nothing.
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			e.Flush(flushCtx)
			cancel()
			return ctx.Err()
		case <-tick.C:
			if err := e.Tick(ctx); err != nil {
				e.logger.ErrorContext(ctx, "Tick submission failed, retrying",
					"error", err,
					"attempt_id", e.attemptID)
			}
			if e.State() == StateSubmitted {
				return nil
			}
		case <-save.C:
			e.maybeAutosave(ctx)
		}
	}
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
