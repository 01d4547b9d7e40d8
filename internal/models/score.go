package models

// QuestionResult is the tri-state correctness of one scored question.
type QuestionResult string

const (
	ResultCorrect   QuestionResult = "correct"
	ResultIncorrect QuestionResult = "incorrect"
	// ResultPending marks a free-response question awaiting manual grading.
	ResultPending QuestionResult = "pending"
)

// Aggregate is a points-earned / points-possible pair at some granularity.
type Aggregate struct {
	PointsEarned   float64 `json:"points_earned"`
	PointsPossible float64 `json:"points_possible"`
}

// Percentage returns 100*earned/possible, or 0 when nothing is possible.
// Never rounded here; rounding is a presentation concern.
func (a Aggregate) Percentage() float64 {
	if a.PointsPossible <= 0 {
		return 0
	}
	return 100 * a.PointsEarned / a.PointsPossible
}

// Add accumulates another earned/possible pair into the aggregate.
func (a *Aggregate) Add(earned, possible float64) {
	a.PointsEarned += earned
	a.PointsPossible += possible
}

// QuestionScore records one question's outcome inside a breakdown.
type QuestionScore struct {
	Section        int            `json:"section"`
	Question       int            `json:"question"`
	Type           QuestionType   `json:"type"`
	Result         QuestionResult `json:"result"`
	PointsEarned   float64        `json:"points_earned"`
	PointsPossible float64        `json:"points_possible"`
}

// ScoreBreakdown is the full scored view of a completed attempt:
// per-question entries plus section, question-type and overall aggregates.
type ScoreBreakdown struct {
	Questions []QuestionScore            `json:"questions"`
	Sections  []Aggregate                `json:"sections"`
	ByType    map[QuestionType]Aggregate `json:"by_type"`
	Total     Aggregate                  `json:"total"`

	// Percentage is the overall score, weighted when the exam configures
	// explicit MC/FR weights. Stored unrounded.
	Percentage float64 `json:"percentage"`
	Weighted   bool    `json:"weighted"`
	Passed     bool    `json:"passed"`

	// PendingQuestions counts free-response questions still awaiting a
	// manual grade; the percentage covers only the auto-gradable portion
	// until this reaches zero.
	PendingQuestions int `json:"pending_questions"`
}
