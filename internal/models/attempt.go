package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
)

// Submission reasons recorded on completion.
const (
	EndReasonSubmitted = "submitted"
	EndReasonTimeout   = "time_out"
)

// ExamAttempt is one student's try at an exam. The store owns the durable
// record; the engine holds a working copy and treats this row as the source
// of truth on resume.
type ExamAttempt struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	ExamID        uint          `json:"exam_id" gorm:"not null;index;uniqueIndex:idx_exam_student_ordinal"`
	StudentID     string        `json:"student_id" gorm:"not null;index;size:255;uniqueIndex:idx_exam_student_ordinal"`
	AttemptNumber int           `json:"attempt_number" gorm:"not null;uniqueIndex:idx_exam_student_ordinal"`
	Status        AttemptStatus `json:"status" gorm:"default:in_progress;index"`

	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	CompletedAt *time.Time `json:"completed_at"`
	LastSavedAt *time.Time `json:"last_saved_at"`
	EndReason   *string    `json:"end_reason" gorm:"size:32"`

	CurrentSection  int `json:"current_section"`
	CurrentQuestion int `json:"current_question"`
	TimeUsedMinutes int `json:"time_used_minutes"`

	// Snapshot of the built sections at attempt start ([]Section). Author
	// edits after this instant never reach an in-flight attempt.
	Sections datatypes.JSON `json:"sections" gorm:"type:jsonb"`

	// AnswerMap keyed by "section:question".
	Answers datatypes.JSON `json:"answers" gorm:"type:jsonb"`

	// ScoreBreakdown, present once completed.
	Score datatypes.JSON `json:"score" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ExamAttempt) TableName() string {
	return "exam_attempts"
}

func (a *ExamAttempt) SectionList() ([]Section, error) {
	if len(a.Sections) == 0 {
		return nil, nil
	}
	var sections []Section
	if err := json.Unmarshal(a.Sections, &sections); err != nil {
		return nil, fmt.Errorf("decode attempt sections: %w", err)
	}
	return sections, nil
}

func (a *ExamAttempt) SetSectionList(sections []Section) error {
	raw, err := json.Marshal(sections)
	if err != nil {
		return err
	}
	a.Sections = raw
	return nil
}

func (a *ExamAttempt) AnswerMap() (AnswerMap, error) {
	if len(a.Answers) == 0 {
		return AnswerMap{}, nil
	}
	var answers AnswerMap
	if err := json.Unmarshal(a.Answers, &answers); err != nil {
		return nil, fmt.Errorf("decode attempt answers: %w", err)
	}
	return answers, nil
}

func (a *ExamAttempt) SetAnswerMap(answers AnswerMap) error {
	raw, err := json.Marshal(answers)
	if err != nil {
		return err
	}
	a.Answers = raw
	return nil
}

func (a *ExamAttempt) ScoreBreakdown() (*ScoreBreakdown, error) {
	if len(a.Score) == 0 {
		return nil, nil
	}
	var breakdown ScoreBreakdown
	if err := json.Unmarshal(a.Score, &breakdown); err != nil {
		return nil, fmt.Errorf("decode attempt score: %w", err)
	}
	return &breakdown, nil
}

func (a *ExamAttempt) SetScoreBreakdown(breakdown *ScoreBreakdown) error {
	if breakdown == nil {
		a.Score = nil
		return nil
	}
	raw, err := json.Marshal(breakdown)
	if err != nil {
		return err
	}
	a.Score = raw
	return nil
}

// Answer is one question's stored response. Exactly one of Selected or
// Responses is populated, matching the question variant. Scores holds
// manually assigned free-response points, written by the external grading
// workflow after submission.
type Answer struct {
	Selected  *int               `json:"selected,omitempty"`
	Responses map[string]string  `json:"responses,omitempty"` // "part:sub" -> free text
	Scores    map[string]float64 `json:"scores,omitempty"`    // "part:sub" -> awarded points
	UpdatedAt time.Time          `json:"updated_at"`
}

// AnswerMap keys answers by AnswerKey(section, question).
type AnswerMap map[string]Answer

// AnswerKey builds the canonical "section:question" map key.
func AnswerKey(section, question int) string {
	return strconv.Itoa(section) + ":" + strconv.Itoa(question)
}

// ParseAnswerKey inverts AnswerKey.
func ParseAnswerKey(key string) (section, question int, err error) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed answer key %q", key)
	}
	section, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed answer key %q", key)
	}
	question, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed answer key %q", key)
	}
	return section, question, nil
}

// SubPartKey builds the "part:sub" key used inside free-response answers.
func SubPartKey(part, sub int) string {
	return strconv.Itoa(part) + ":" + strconv.Itoa(sub)
}

// Merge folds incoming answers into the map per key, last write wins by the
// answer's UpdatedAt stamp. A stale network retry therefore cannot clobber
// a newer answer, and keys absent from the update are preserved. Manually
// assigned Scores survive merges regardless of the timestamp comparison.
func (m AnswerMap) Merge(incoming AnswerMap) {
	for key, in := range incoming {
		existing, ok := m[key]
		if !ok {
			m[key] = in
			continue
		}
		if in.UpdatedAt.Before(existing.UpdatedAt) {
			continue
		}
		if in.Scores == nil && existing.Scores != nil {
			in.Scores = existing.Scores
		}
		m[key] = in
	}
}

// Clone deep-copies the map so the engine's working copy cannot alias the
// persisted one.
func (m AnswerMap) Clone() AnswerMap {
	out := make(AnswerMap, len(m))
	for key, a := range m {
		copied := a
		if a.Responses != nil {
			copied.Responses = make(map[string]string, len(a.Responses))
			for k, v := range a.Responses {
				copied.Responses[k] = v
			}
		}
		if a.Scores != nil {
			copied.Scores = make(map[string]float64, len(a.Scores))
			for k, v := range a.Scores {
				copied.Scores[k] = v
			}
		}
		out[key] = copied
	}
	return out
}
