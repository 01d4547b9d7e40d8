package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	FreeResponse   QuestionType = "free_response"
)

// Exam is the author-entered definition of a timed, sectioned assessment.
// The question groups are stored as a single JSONB document; in-flight
// attempts never read this row again after their section snapshot is taken.
type Exam struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Title       string  `json:"title" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Description *string `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`

	PassingScore float64 `json:"passing_score" gorm:"not null" validate:"required,passing_score"`
	MaxAttempts  int     `json:"max_attempts" gorm:"default:1" validate:"required,max_attempts"`

	// Availability window. Nil means unbounded on that side.
	AvailableFrom  *time.Time `json:"available_from"`
	AvailableUntil *time.Time `json:"available_until"`

	// Behavior flags
	ShuffleQuestions    bool `json:"shuffle_questions" gorm:"not null;default:false"`
	ShuffleOptions      bool `json:"shuffle_options" gorm:"not null;default:false"`
	ShowCorrectAnswers  bool `json:"show_correct_answers" gorm:"not null;default:false"`
	AllowReview         bool `json:"allow_review" gorm:"not null;default:true"`
	RequireProctoring   bool `json:"require_proctoring" gorm:"not null;default:false"`
	AllowBackNavigation bool `json:"allow_back_navigation" gorm:"not null;default:false"` // false = AP-format section lock

	// Optional type weights. Both set => weighted overall score applies.
	// Weights are fractions (e.g. 0.6 / 0.4), never inferred from points.
	MCWeight *float64 `json:"mc_weight" validate:"omitempty,min=0,max=1"`
	FRWeight *float64 `json:"fr_weight" validate:"omitempty,min=0,max=1"`

	// Ordered question groups as authored ([]QuestionGroup).
	Groups datatypes.JSON `json:"groups" gorm:"type:jsonb"`

	CreatedBy string         `json:"created_by" gorm:"index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Exam) TableName() string {
	return "exams"
}

// QuestionGroups decodes the authored group list. A nil Groups column
// decodes to an empty slice, not an error.
func (e *Exam) QuestionGroups() ([]QuestionGroup, error) {
	if len(e.Groups) == 0 {
		return nil, nil
	}
	var groups []QuestionGroup
	if err := json.Unmarshal(e.Groups, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (e *Exam) SetQuestionGroups(groups []QuestionGroup) error {
	raw, err := json.Marshal(groups)
	if err != nil {
		return err
	}
	e.Groups = raw
	return nil
}

// Weighted reports whether the exam scores MC and FR portions by explicit
// weights instead of the plain points ratio.
func (e *Exam) Weighted() bool {
	return e.MCWeight != nil && e.FRWeight != nil
}

// QuestionGroup is one authored block of same-type questions sharing a time
// limit and calculator policy. Group order is the section order.
type QuestionGroup struct {
	Title              string       `json:"title"`
	Type               QuestionType `json:"type"`
	CalculatorRequired bool         `json:"calculator_required"`
	TimeLimitMinutes   int          `json:"time_limit_minutes"`
	Questions          []Question   `json:"questions"`
}

// Section is the unit of timing and navigation: a non-empty, ordered block
// of questions produced once at attempt start and immutable thereafter.
type Section struct {
	Index              int          `json:"index"`
	Title              string       `json:"title"`
	Type               QuestionType `json:"type"`
	CalculatorRequired bool         `json:"calculator_required"`
	TimeLimitMinutes   int          `json:"time_limit_minutes"`
	Questions          []Question   `json:"questions"`
}

func (s Section) TimeLimit() time.Duration {
	return time.Duration(s.TimeLimitMinutes) * time.Minute
}

// TotalPoints sums the point maxima of every question in the section.
func (s Section) TotalPoints() int {
	total := 0
	for _, q := range s.Questions {
		total += q.TotalPoints()
	}
	return total
}
