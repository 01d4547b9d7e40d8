package services

import (
	"context"
	"errors"
	"testing"

	"github.com/ccingram94/galileo-sub000/internal/events"
	"github.com/ccingram94/galileo-sub000/internal/models"
	"github.com/ccingram94/galileo-sub000/internal/repositories/memory"
	"github.com/ccingram94/galileo-sub000/internal/validator"
)

// submitFixture seeds an exam, runs one attempt through submission and
// returns its id. The free-response question stays pending.
func submitFixture(t *testing.T) (GradingService, AttemptService, *memory.Repository, *events.MockEventPublisher, uint) {
	t.Helper()
	repo := memory.NewRepository()
	publisher := events.NewMockEventPublisher(testLogger())
	v := validator.New()
	attempts := NewAttemptService(repo, publisher, testLogger(), v)
	grading := NewGradingService(repo, publisher, testLogger(), v)

	exam := seedExam(t, repo, nil)
	ctx := context.Background()

	started, err := attempts.Start(ctx, &StartAttemptRequest{ExamID: exam.ID}, "student-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	submitted, err := attempts.Submit(ctx, started.ID, &SubmitAttemptRequest{
		Answers: []AnswerPayload{
			{SectionIndex: 0, QuestionIndex: 0, Selected: intPtr(1)},
			{SectionIndex: 0, QuestionIndex: 1, Selected: intPtr(2)},
			{SectionIndex: 1, QuestionIndex: 0, Responses: map[string]string{"0:0": "chain rule, then evaluate"}},
		},
	}, "student-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if submitted.Breakdown.PendingQuestions != 1 {
		t.Fatalf("fixture pending = %d, want 1", submitted.Breakdown.PendingQuestions)
	}
	publisher.ClearEvents()
	return grading, attempts, repo, publisher, started.ID
}

func TestGradeSubPartResolvesPending(t *testing.T) {
	grading, _, _, publisher, attemptID := submitFixture(t)
	ctx := context.Background()

	resp, err := grading.GradeSubPart(ctx, attemptID, &GradeSubPartRequest{
		SectionIndex:  1,
		QuestionIndex: 0,
		PartIndex:     0,
		SubPartIndex:  0,
		Points:        2,
	}, "teacher-1")
	if err != nil {
		t.Fatalf("GradeSubPart: %v", err)
	}

	bd := resp.Breakdown
	if bd.PendingQuestions != 0 {
		t.Errorf("pending after grading = %d, want 0", bd.PendingQuestions)
	}
	// 2 MC points + 2 awarded FR points of 5 possible.
	if bd.Total.PointsEarned != 4 || bd.Total.PointsPossible != 5 {
		t.Errorf("total = %v/%v, want 4/5", bd.Total.PointsEarned, bd.Total.PointsPossible)
	}
	if !bd.Passed {
		t.Error("Passed = false at 80% with threshold 60")
	}

	published := publisher.GetPublishedEvents()
	if len(published) != 1 || published[0].Type != events.EventAttemptGraded {
		t.Errorf("published = %+v, want one attempt.graded", published)
	}
}

func TestGradeSubPartValidation(t *testing.T) {
	grading, _, _, _, attemptID := submitFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  GradeSubPartRequest
	}{
		{"section out of range", GradeSubPartRequest{SectionIndex: 9}},
		{"question out of range", GradeSubPartRequest{SectionIndex: 1, QuestionIndex: 9}},
		{"not free response", GradeSubPartRequest{SectionIndex: 0, QuestionIndex: 0}},
		{"sub-part out of range", GradeSubPartRequest{SectionIndex: 1, QuestionIndex: 0, SubPartIndex: 9}},
		{"points above maximum", GradeSubPartRequest{SectionIndex: 1, QuestionIndex: 0, Points: 99}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := grading.GradeSubPart(ctx, attemptID, &tt.req, "teacher-1")
			var valErr *ValidationError
			if !errors.As(err, &valErr) {
				t.Errorf("err = %v, want ValidationError", err)
			}
		})
	}
}

func TestGradeSubPartPermissions(t *testing.T) {
	grading, _, _, _, attemptID := submitFixture(t)
	ctx := context.Background()

	req := &GradeSubPartRequest{SectionIndex: 1, QuestionIndex: 0, Points: 1}
	_, err := grading.GradeSubPart(ctx, attemptID, req, "student-1")
	var permErr *PermissionError
	if !errors.As(err, &permErr) {
		t.Errorf("student grading err = %v, want PermissionError", err)
	}
}

func TestGradeSubPartRequiresSubmission(t *testing.T) {
	repo := memory.NewRepository()
	publisher := events.NewMockEventPublisher(testLogger())
	v := validator.New()
	attempts := NewAttemptService(repo, publisher, testLogger(), v)
	grading := NewGradingService(repo, publisher, testLogger(), v)

	exam := seedExam(t, repo, nil)
	ctx := context.Background()
	started, err := attempts.Start(ctx, &StartAttemptRequest{ExamID: exam.ID}, "student-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, err = grading.GradeSubPart(ctx, started.ID, &GradeSubPartRequest{
		SectionIndex: 1, QuestionIndex: 0, Points: 1,
	}, "teacher-1")
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Errorf("grading in-progress attempt err = %v, want ValidationError", err)
	}
}

func TestExportResults(t *testing.T) {
	grading, _, _, _, _ := submitFixture(t)
	ctx := context.Background()

	f, err := grading.ExportResults(ctx, 1, "teacher-1")
	if err != nil {
		t.Fatalf("ExportResults: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Results")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want header plus one attempt", len(rows))
	}
	if rows[0][0] != "Student ID" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][0] != "student-1" || rows[1][2] != string(models.AttemptCompleted) {
		t.Errorf("data row = %v", rows[1])
	}
}

func TestExportResultsRequiresOwnership(t *testing.T) {
	grading, _, _, _, _ := submitFixture(t)

	_, err := grading.ExportResults(context.Background(), 1, "student-1")
	var permErr *PermissionError
	if !errors.As(err, &permErr) {
		t.Errorf("err = %v, want PermissionError", err)
	}
}
