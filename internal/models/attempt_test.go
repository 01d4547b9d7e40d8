package models

import (
	"testing"
	"time"
)

func TestAnswerKeyRoundTrip(t *testing.T) {
	key := AnswerKey(2, 14)
	if key != "2:14" {
		t.Errorf("AnswerKey = %q, want \"2:14\"", key)
	}
	section, question, err := ParseAnswerKey(key)
	if err != nil {
		t.Fatalf("ParseAnswerKey: %v", err)
	}
	if section != 2 || question != 14 {
		t.Errorf("parsed (%d, %d), want (2, 14)", section, question)
	}

	for _, bad := range []string{"", "2", "a:b", "2:"} {
		if _, _, err := ParseAnswerKey(bad); err == nil {
			t.Errorf("ParseAnswerKey(%q) accepted malformed key", bad)
		}
	}
}

func TestAnswerMapMergeLastWriteWins(t *testing.T) {
	older := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	newer := older.Add(time.Minute)

	selected := func(v int) *int { return &v }

	t.Run("newer incoming replaces", func(t *testing.T) {
		m := AnswerMap{"0:0": {Selected: selected(1), UpdatedAt: older}}
		m.Merge(AnswerMap{"0:0": {Selected: selected(3), UpdatedAt: newer}})
		if got := *m["0:0"].Selected; got != 3 {
			t.Errorf("Selected = %d, want 3", got)
		}
	})

	t.Run("stale retry cannot clobber", func(t *testing.T) {
		m := AnswerMap{"0:0": {Selected: selected(3), UpdatedAt: newer}}
		m.Merge(AnswerMap{"0:0": {Selected: selected(1), UpdatedAt: older}})
		if got := *m["0:0"].Selected; got != 3 {
			t.Errorf("Selected = %d, want newer value 3", got)
		}
	})

	t.Run("absent keys preserved", func(t *testing.T) {
		m := AnswerMap{
			"0:0": {Selected: selected(1), UpdatedAt: older},
			"0:1": {Selected: selected(2), UpdatedAt: older},
		}
		m.Merge(AnswerMap{"0:0": {Selected: selected(3), UpdatedAt: newer}})
		if _, ok := m["0:1"]; !ok {
			t.Error("key absent from the update was dropped")
		}
	})

	t.Run("manual scores survive merge", func(t *testing.T) {
		m := AnswerMap{"1:0": {
			Responses: map[string]string{"0:0": "graded work"},
			Scores:    map[string]float64{"0:0": 4},
			UpdatedAt: older,
		}}
		m.Merge(AnswerMap{"1:0": {
			Responses: map[string]string{"0:0": "edited work"},
			UpdatedAt: newer,
		}})
		got := m["1:0"]
		if got.Responses["0:0"] != "edited work" {
			t.Errorf("Responses = %v, want edited text", got.Responses)
		}
		if got.Scores["0:0"] != 4 {
			t.Errorf("Scores = %v, manual grade lost in merge", got.Scores)
		}
	})
}

func TestAnswerMapCloneIsDeep(t *testing.T) {
	m := AnswerMap{"0:0": {
		Responses: map[string]string{"0:0": "original"},
		Scores:    map[string]float64{"0:0": 2},
	}}
	clone := m.Clone()
	clone["0:0"].Responses["0:0"] = "mutated"
	clone["0:0"].Scores["0:0"] = 99

	if m["0:0"].Responses["0:0"] != "original" {
		t.Error("clone shares the Responses map")
	}
	if m["0:0"].Scores["0:0"] != 2 {
		t.Error("clone shares the Scores map")
	}
}

func TestSectionSnapshotRoundTrip(t *testing.T) {
	attempt := &ExamAttempt{}
	sections := []Section{{
		Index:            0,
		Title:            "Section I",
		Type:             MultipleChoice,
		TimeLimitMinutes: 45,
		Questions: []Question{{
			Type: MultipleChoice, Text: "q", Options: []string{"a", "b"}, CorrectOption: 1,
		}},
	}}
	if err := attempt.SetSectionList(sections); err != nil {
		t.Fatalf("SetSectionList: %v", err)
	}
	got, err := attempt.SectionList()
	if err != nil {
		t.Fatalf("SectionList: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Section I" || got[0].Questions[0].CorrectOption != 1 {
		t.Errorf("round trip mangled the snapshot: %+v", got)
	}
}

func TestQuestionTotalPoints(t *testing.T) {
	tests := []struct {
		name string
		q    Question
		want int
	}{
		{"mc default", Question{Type: MultipleChoice}, 1},
		{"mc explicit", Question{Type: MultipleChoice, Points: 3}, 3},
		{"fr sums sub-parts", Question{Type: FreeResponse, Parts: []Part{
			{SubParts: []SubPart{{Points: 3}, {Points: 2}}},
			{SubParts: []SubPart{{Points: 4}}},
		}}, 9},
		{"fr partless default", Question{Type: FreeResponse}, DefaultFreeResponsePoints},
		// Declared sub-parts cap what grading can award, so the default
		// never papers over zero-point slots.
		{"fr zero-point sub-parts", Question{Type: FreeResponse, Parts: []Part{
			{SubParts: []SubPart{{Points: 0}, {Points: 0}}},
		}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.TotalPoints(); got != tt.want {
				t.Errorf("TotalPoints = %d, want %d", got, tt.want)
			}
		})
	}
}
