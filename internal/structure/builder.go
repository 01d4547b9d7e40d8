// Package structure converts an authored exam definition into the ordered,
// immutable section list consumed by the attempt engine and the scoring
// engine.
package structure

import (
	"fmt"
	"hash/fnv"
	"math/rand"

	"github.com/ccingram94/galileo-sub000/internal/models"
)

// Build converts the exam's question groups into ordered sections.
// Deterministic: the same definition always yields the same sections, in
// author-declared group order, never re-sorted. Groups with zero questions
// are omitted; a section with an empty question list is never emitted. An
// exam whose groups are all empty yields an empty slice — callers must
// treat that as "exam cannot be started", not enter the engine with it.
func Build(exam *models.Exam) ([]models.Section, error) {
	groups, err := exam.QuestionGroups()
	if err != nil {
		return nil, fmt.Errorf("decode question groups: %w", err)
	}

	sections := make([]models.Section, 0, len(groups))
	for _, g := range groups {
		if len(g.Questions) == 0 {
			continue
		}
		questions := make([]models.Question, len(g.Questions))
		copy(questions, g.Questions)
		sections = append(sections, models.Section{
			Index:              len(sections),
			Title:              g.Title,
			Type:               g.Type,
			CalculatorRequired: g.CalculatorRequired,
			TimeLimitMinutes:   g.TimeLimitMinutes,
			Questions:          questions,
		})
	}
	return sections, nil
}

// BuildForAttempt builds sections for one specific attempt, applying the
// exam's shuffle flags with a seed derived from (studentID, examID,
// attemptOrdinal). The same attempt therefore always sees the same layout,
// across reloads and process restarts. Option shuffles remap each
// question's correct option index.
func BuildForAttempt(exam *models.Exam, studentID string, attemptOrdinal int) ([]models.Section, error) {
	sections, err := Build(exam)
	if err != nil {
		return nil, err
	}
	if !exam.ShuffleQuestions && !exam.ShuffleOptions {
		return sections, nil
	}

	rng := rand.New(rand.NewSource(shuffleSeed(exam.ID, studentID, attemptOrdinal)))
	for si := range sections {
		if exam.ShuffleQuestions {
			rng.Shuffle(len(sections[si].Questions), func(i, j int) {
				qs := sections[si].Questions
				qs[i], qs[j] = qs[j], qs[i]
			})
		}
		if exam.ShuffleOptions {
			for qi := range sections[si].Questions {
				shuffleOptions(rng, &sections[si].Questions[qi])
			}
		}
	}
	return sections, nil
}

func shuffleOptions(rng *rand.Rand, q *models.Question) {
	if q.Type != models.MultipleChoice || len(q.Options) < 2 {
		return
	}
	perm := rng.Perm(len(q.Options))
	correct := q.CorrectOption
	shuffled := make([]string, len(q.Options))
	for newIdx, oldIdx := range perm {
		shuffled[newIdx] = q.Options[oldIdx]
		if oldIdx == correct {
			q.CorrectOption = newIdx
		}
	}
	// Out-of-range keys stay out of range so the question still scores 0.
	q.Options = shuffled
}

func shuffleSeed(examID uint, studentID string, attemptOrdinal int) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%s|%d", examID, studentID, attemptOrdinal)
	return int64(h.Sum64())
}
