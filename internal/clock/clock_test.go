package clock

import (
	"testing"
	"time"

	"github.com/ccingram94/galileo-sub000/internal/models"
)

func sections(minutes ...int) []models.Section {
	out := make([]models.Section, len(minutes))
	for i, m := range minutes {
		out[i] = models.Section{
			Index:            i,
			TimeLimitMinutes: m,
			Questions:        []models.Question{{Type: models.MultipleChoice, Text: "q"}},
		}
	}
	return out
}

func TestTotalLimit(t *testing.T) {
	if got := TotalLimit(sections(45, 30)); got != 75*time.Minute {
		t.Errorf("TotalLimit = %v, want 75m", got)
	}
	if got := TotalLimit(nil); got != 0 {
		t.Errorf("TotalLimit(nil) = %v, want 0", got)
	}
}

func TestSectionStart(t *testing.T) {
	startedAt := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	secs := sections(45, 30, 15)

	tests := []struct {
		name string
		idx  int
		want time.Time
	}{
		{"first section starts at attempt start", 0, startedAt},
		{"second starts after first limit", 1, startedAt.Add(45 * time.Minute)},
		{"third starts after both limits", 2, startedAt.Add(75 * time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SectionStart(secs, tt.idx, startedAt); !got.Equal(tt.want) {
				t.Errorf("SectionStart(%d) = %v, want %v", tt.idx, got, tt.want)
			}
		})
	}
}

func TestRemainingIsPureFunctionOfNow(t *testing.T) {
	startedAt := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	secs := sections(45, 30)

	// Two reads at the same instant agree exactly, no matter how many
	// reads happened in between. There is no countdown to drift.
	now := startedAt.Add(17 * time.Minute)
	first := Remaining(secs, 0, startedAt, now)
	for i := 0; i < 100; i++ {
		Remaining(secs, 0, startedAt, startedAt.Add(time.Duration(i)*time.Second))
	}
	second := Remaining(secs, 0, startedAt, now)
	if first != second {
		t.Errorf("repeated reads at the same instant differ: %+v vs %+v", first, second)
	}
	if first.TotalRemaining != 58*time.Minute {
		t.Errorf("TotalRemaining = %v, want 58m", first.TotalRemaining)
	}
	if first.SectionRemaining != 28*time.Minute {
		t.Errorf("SectionRemaining = %v, want 28m", first.SectionRemaining)
	}
}

func TestRemainingFloorsAtZero(t *testing.T) {
	startedAt := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	secs := sections(45, 30)

	now := startedAt.Add(3 * time.Hour)
	if got := TotalRemaining(secs, startedAt, now); got != 0 {
		t.Errorf("TotalRemaining past expiry = %v, want 0", got)
	}
	if got := SectionRemaining(secs, 1, startedAt, now); got != 0 {
		t.Errorf("SectionRemaining past expiry = %v, want 0", got)
	}
	if !Expired(secs, startedAt, now) {
		t.Error("Expired = false past the total limit")
	}
}

func TestSectionRemainingFixedSchedule(t *testing.T) {
	startedAt := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	secs := sections(45, 30)

	// Section 2's clock runs on the fixed schedule: moving into it early
	// does not bank the unused time from section 1.
	now := startedAt.Add(10 * time.Minute)
	if got := SectionRemaining(secs, 1, startedAt, now); got != 30*time.Minute {
		t.Errorf("SectionRemaining(1) before its window = %v, want full 30m", got)
	}

	now = startedAt.Add(50 * time.Minute)
	if got := SectionRemaining(secs, 1, startedAt, now); got != 25*time.Minute {
		t.Errorf("SectionRemaining(1) = %v, want 25m", got)
	}
}

func TestSectionRemainingOutOfRange(t *testing.T) {
	startedAt := time.Now()
	secs := sections(45)
	if got := SectionRemaining(secs, -1, startedAt, startedAt); got != 0 {
		t.Errorf("SectionRemaining(-1) = %v, want 0", got)
	}
	if got := SectionRemaining(secs, 5, startedAt, startedAt); got != 0 {
		t.Errorf("SectionRemaining(5) = %v, want 0", got)
	}
}
