package structure

import (
	"reflect"
	"testing"

	"github.com/ccingram94/galileo-sub000/internal/models"
)

func makeExam(t *testing.T, groups []models.QuestionGroup) *models.Exam {
	t.Helper()
	exam := &models.Exam{ID: 7, Title: "AP Calculus AB Practice", PassingScore: 60, MaxAttempts: 3}
	if err := exam.SetQuestionGroups(groups); err != nil {
		t.Fatalf("SetQuestionGroups: %v", err)
	}
	return exam
}

func mcGroup(title string, minutes int, n int) models.QuestionGroup {
	g := models.QuestionGroup{Title: title, Type: models.MultipleChoice, TimeLimitMinutes: minutes}
	for i := 0; i < n; i++ {
		g.Questions = append(g.Questions, models.Question{
			Type:          models.MultipleChoice,
			Text:          title,
			Options:       []string{"a", "b", "c", "d"},
			CorrectOption: i % 4,
		})
	}
	return g
}

func TestBuildPreservesOrderAndCount(t *testing.T) {
	exam := makeExam(t, []models.QuestionGroup{
		mcGroup("Section I Part A", 45, 10),
		mcGroup("Section I Part B", 30, 5),
		{Title: "Section II", Type: models.FreeResponse, TimeLimitMinutes: 60,
			Questions: []models.Question{{Type: models.FreeResponse, Text: "fr"}}},
	})

	sections, err := Build(exam)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(sections) != 3 {
		t.Fatalf("got %d sections, want 3", len(sections))
	}

	wantTitles := []string{"Section I Part A", "Section I Part B", "Section II"}
	wantCounts := []int{10, 5, 1}
	for i, s := range sections {
		if s.Title != wantTitles[i] {
			t.Errorf("section %d title = %q, want %q", i, s.Title, wantTitles[i])
		}
		if len(s.Questions) != wantCounts[i] {
			t.Errorf("section %d has %d questions, want %d", i, len(s.Questions), wantCounts[i])
		}
		if s.Index != i {
			t.Errorf("section %d Index = %d", i, s.Index)
		}
	}
}

func TestBuildSkipsEmptyGroups(t *testing.T) {
	exam := makeExam(t, []models.QuestionGroup{
		{Title: "empty", Type: models.MultipleChoice, TimeLimitMinutes: 10},
		mcGroup("real", 45, 3),
	})

	sections, err := Build(exam)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(sections) != 1 {
		t.Fatalf("got %d sections, want 1", len(sections))
	}
	if sections[0].Title != "real" || sections[0].Index != 0 {
		t.Errorf("surviving section = %+v", sections[0])
	}
}

func TestBuildAllEmptyYieldsEmptySlice(t *testing.T) {
	exam := makeExam(t, []models.QuestionGroup{
		{Title: "a", Type: models.MultipleChoice, TimeLimitMinutes: 10},
		{Title: "b", Type: models.FreeResponse, TimeLimitMinutes: 10},
	})

	sections, err := Build(exam)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(sections) != 0 {
		t.Errorf("got %d sections, want 0", len(sections))
	}
}

func TestBuildForAttemptDeterministicPerAttempt(t *testing.T) {
	exam := makeExam(t, []models.QuestionGroup{mcGroup("shuffled", 45, 20)})
	exam.ShuffleQuestions = true
	exam.ShuffleOptions = true

	first, err := BuildForAttempt(exam, "student-1", 1)
	if err != nil {
		t.Fatalf("BuildForAttempt: %v", err)
	}
	second, err := BuildForAttempt(exam, "student-1", 1)
	if err != nil {
		t.Fatalf("BuildForAttempt: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("same (student, exam, ordinal) produced different layouts")
	}

	other, err := BuildForAttempt(exam, "student-1", 2)
	if err != nil {
		t.Fatalf("BuildForAttempt: %v", err)
	}
	if reflect.DeepEqual(first, other) {
		t.Error("different ordinals produced identical layouts (possible, but 20! permutations make it a bug)")
	}
}

func TestBuildForAttemptShuffleKeepsAnswerKey(t *testing.T) {
	exam := makeExam(t, []models.QuestionGroup{mcGroup("shuffled", 45, 8)})
	exam.ShuffleOptions = true

	base, err := Build(exam)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	shuffled, err := BuildForAttempt(exam, "student-1", 1)
	if err != nil {
		t.Fatalf("BuildForAttempt: %v", err)
	}

	// Without question shuffling the order is stable, so question i lines
	// up with question i. The correct option must point at the same text.
	for i, q := range shuffled[0].Questions {
		orig := base[0].Questions[i]
		wantText := orig.Options[orig.CorrectOption]
		if q.CorrectOption < 0 || q.CorrectOption >= len(q.Options) {
			t.Fatalf("question %d correct option %d out of range", i, q.CorrectOption)
		}
		if got := q.Options[q.CorrectOption]; got != wantText {
			t.Errorf("question %d correct answer = %q, want %q", i, got, wantText)
		}
	}
}

func TestBuildForAttemptNoShuffleFlagsNoChange(t *testing.T) {
	exam := makeExam(t, []models.QuestionGroup{mcGroup("plain", 45, 6)})

	base, err := Build(exam)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	built, err := BuildForAttempt(exam, "student-1", 1)
	if err != nil {
		t.Fatalf("BuildForAttempt: %v", err)
	}
	if !reflect.DeepEqual(base, built) {
		t.Error("layout changed with both shuffle flags off")
	}
}
