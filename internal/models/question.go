package models

// DefaultFreeResponsePoints applies when a free-response question declares
// no gradable sub-parts, which are then graded as one implicit slot.
const DefaultFreeResponsePoints = 6

// Question is polymorphic over the two exam question variants. The Type
// field selects which half of the struct is meaningful: Options and
// CorrectOption for multiple choice, Parts for free response.
type Question struct {
	Type        QuestionType `json:"type"`
	Text        string       `json:"text"`
	Explanation *string      `json:"explanation,omitempty"`

	// Multiple choice
	Options       []string `json:"options,omitempty"`
	CorrectOption int      `json:"correct_option"`
	Points        int      `json:"points"` // default 1 when zero

	// Free response
	Parts []Part `json:"parts,omitempty"`
}

// Part groups ordered sub-parts of a free-response question.
type Part struct {
	Label    string    `json:"label"`
	SubParts []SubPart `json:"sub_parts"`
}

// SubPart is the smallest gradable unit of a free-response question.
type SubPart struct {
	Label  string   `json:"label"`
	Prompt string   `json:"prompt"`
	Points int      `json:"points"`
	Rubric []string `json:"rubric,omitempty"`
}

// TotalPoints returns the question's point maximum: the declared value
// (default 1) for multiple choice, the sub-part sum for free response. The
// default applies only to questions with no sub-parts at all; declared
// sub-parts cap what grading can award, so their sum is the true maximum
// even when it is lower than the default.
func (q Question) TotalPoints() int {
	switch q.Type {
	case FreeResponse:
		slots := 0
		total := 0
		for _, p := range q.Parts {
			for _, sp := range p.SubParts {
				slots++
				if sp.Points > 0 {
					total += sp.Points
				}
			}
		}
		if slots == 0 {
			return DefaultFreeResponsePoints
		}
		return total
	default:
		if q.Points <= 0 {
			return 1
		}
		return q.Points
	}
}

// Scoreable reports whether a multiple-choice question has a usable answer
// key. An out-of-range CorrectOption makes the question worth 0, never an
// error at scoring time.
func (q Question) Scoreable() bool {
	if q.Type != MultipleChoice {
		return true
	}
	return q.CorrectOption >= 0 && q.CorrectOption < len(q.Options)
}
