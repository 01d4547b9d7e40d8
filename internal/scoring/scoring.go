// Package scoring turns a completed attempt's raw answers and section
// snapshot into a deterministic ScoreBreakdown. Pure: no clock, no store,
// no randomness — identical inputs produce identical output.
package scoring

import (
	"github.com/ccingram94/galileo-sub000/internal/models"
)

// Config carries the exam-level scoring configuration.
type Config struct {
	// PassingScore is the pass threshold as a percentage.
	PassingScore float64

	// MCWeight / FRWeight, when both set, switch the overall score from the
	// plain points ratio to 100*(mcPct*mcW + frPct*frW). Weights are
	// explicit exam configuration, never inferred.
	MCWeight *float64
	FRWeight *float64
}

func (c Config) weighted() bool {
	return c.MCWeight != nil && c.FRWeight != nil
}

// Score grades every question in the snapshot against the answer map.
//
// Multiple choice: full points on an exact correct-option match, zero and
// "incorrect" for any other or absent answer. A question with an invalid
// correct-option index scores zero rather than erroring. Free response:
// manually assigned sub-part scores (clamped to each sub-part's maximum)
// are summed when present; otherwise the question earns zero and is marked
// pending — the engine never invents a score for free text.
func Score(sections []models.Section, answers models.AnswerMap, cfg Config) *models.ScoreBreakdown {
	breakdown := &models.ScoreBreakdown{
		Questions: make([]models.QuestionScore, 0),
		Sections:  make([]models.Aggregate, len(sections)),
		ByType:    make(map[models.QuestionType]models.Aggregate),
	}

	for si, section := range sections {
		for qi, question := range section.Questions {
			qs := scoreQuestion(si, qi, question, answers)
			breakdown.Questions = append(breakdown.Questions, qs)

			breakdown.Sections[si].Add(qs.PointsEarned, qs.PointsPossible)

			agg := breakdown.ByType[qs.Type]
			agg.Add(qs.PointsEarned, qs.PointsPossible)
			breakdown.ByType[qs.Type] = agg

			breakdown.Total.Add(qs.PointsEarned, qs.PointsPossible)

			if qs.Result == models.ResultPending {
				breakdown.PendingQuestions++
			}
		}
	}

	if cfg.weighted() {
		mcPct := breakdown.ByType[models.MultipleChoice].Percentage() / 100
		frPct := breakdown.ByType[models.FreeResponse].Percentage() / 100
		breakdown.Percentage = 100 * (mcPct*(*cfg.MCWeight) + frPct*(*cfg.FRWeight))
		breakdown.Weighted = true
	} else {
		breakdown.Percentage = breakdown.Total.Percentage()
	}
	breakdown.Passed = breakdown.Percentage >= cfg.PassingScore

	return breakdown
}

// Reaggregate re-runs the full rollup after the external manual-grading
// workflow has written free-response scores into the answer map. Section,
// type and overall aggregates stay consistent with the per-question grades.
func Reaggregate(sections []models.Section, answers models.AnswerMap, cfg Config) *models.ScoreBreakdown {
	return Score(sections, answers, cfg)
}

func scoreQuestion(si, qi int, question models.Question, answers models.AnswerMap) models.QuestionScore {
	qs := models.QuestionScore{
		Section:        si,
		Question:       qi,
		Type:           question.Type,
		PointsPossible: float64(question.TotalPoints()),
	}
	answer, answered := answers[models.AnswerKey(si, qi)]

	switch question.Type {
	case models.FreeResponse:
		scoreFreeResponse(&qs, question, answer)
	default:
		// An unscoreable key means zero, marked incorrect, never an error.
		if !question.Scoreable() {
			qs.Result = models.ResultIncorrect
			return qs
		}
		// Absent answers are "incorrect" for reporting, not "ungraded".
		if !answered || answer.Selected == nil {
			qs.Result = models.ResultIncorrect
			return qs
		}
		if *answer.Selected == question.CorrectOption {
			qs.Result = models.ResultCorrect
			qs.PointsEarned = qs.PointsPossible
		} else {
			qs.Result = models.ResultIncorrect
		}
	}
	return qs
}

func scoreFreeResponse(qs *models.QuestionScore, question models.Question, answer models.Answer) {
	if len(answer.Scores) == 0 {
		qs.Result = models.ResultPending
		return
	}

	earned := 0.0
	graded := 0
	total := 0
	for pi, part := range question.Parts {
		for spi, sub := range part.SubParts {
			total++
			awarded, ok := answer.Scores[models.SubPartKey(pi, spi)]
			if !ok {
				continue
			}
			graded++
			if max := float64(sub.Points); awarded > max {
				awarded = max
			}
			if awarded < 0 {
				awarded = 0
			}
			earned += awarded
		}
	}

	// Partless questions carry the default maximum under a single "0:0" slot.
	if total == 0 {
		if awarded, ok := answer.Scores[models.SubPartKey(0, 0)]; ok {
			graded, total = 1, 1
			if awarded > qs.PointsPossible {
				awarded = qs.PointsPossible
			}
			if awarded < 0 {
				awarded = 0
			}
			earned = awarded
		}
	}

	if graded < total || total == 0 {
		qs.Result = models.ResultPending
		qs.PointsEarned = earned
		return
	}

	qs.PointsEarned = earned
	if earned >= qs.PointsPossible {
		qs.Result = models.ResultCorrect
	} else {
		qs.Result = models.ResultIncorrect
	}
}
