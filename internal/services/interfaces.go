package services

import (
	"context"
	"time"

	"github.com/ccingram94/galileo-sub000/internal/clock"
	"github.com/ccingram94/galileo-sub000/internal/models"
	"github.com/ccingram94/galileo-sub000/internal/validator"
	"github.com/xuri/excelize/v2"
)

// ===== REQUEST/RESPONSE DTOs =====

// Authoring requests live with the business validator.
type CreateExamRequest = validator.ExamCreateRequest

type StartAttemptRequest struct {
	ExamID uint `json:"exam_id" validate:"required"`

	// ProctorSessionID is required when the exam demands proctoring; the
	// proctoring system itself is external.
	ProctorSessionID string `json:"proctor_session_id"`
}

// AnswerPayload is one answer as sent by the client. Exactly one of
// Selected (multiple choice) or Responses (free response, keyed by
// "part:subpart") is meaningful for a given question.
type AnswerPayload struct {
	SectionIndex  int               `json:"section_index" validate:"min=0"`
	QuestionIndex int               `json:"question_index" validate:"min=0"`
	Selected      *int              `json:"selected" validate:"omitempty,min=0"`
	Responses     map[string]string `json:"responses"`
	UpdatedAt     *time.Time        `json:"updated_at"`
}

type SaveProgressRequest struct {
	Answers         []AnswerPayload `json:"answers" validate:"omitempty,dive"`
	CurrentSection  *int            `json:"current_section" validate:"omitempty,min=0"`
	CurrentQuestion *int            `json:"current_question" validate:"omitempty,min=0"`
}

type SubmitAttemptRequest struct {
	Answers []AnswerPayload `json:"answers" validate:"omitempty,dive"`
}

type GradeSubPartRequest struct {
	SectionIndex  int     `json:"section_index" validate:"min=0"`
	QuestionIndex int     `json:"question_index" validate:"min=0"`
	PartIndex     int     `json:"part_index" validate:"min=0"`
	SubPartIndex  int     `json:"sub_part_index" validate:"min=0"`
	Points        float64 `json:"points" validate:"min=0"`
}

type AttemptResponse struct {
	*models.ExamAttempt
	Sections      []models.Section       `json:"section_list"`
	AnswerEntries models.AnswerMap       `json:"answer_map"`
	Breakdown     *models.ScoreBreakdown `json:"breakdown,omitempty"`
	TimeRemaining *TimeRemainingResponse `json:"time_remaining,omitempty"`
	CanSubmit     bool                   `json:"can_submit"`
	Resumed       bool                   `json:"resumed"`
}

type TimeRemainingResponse struct {
	TotalSeconds   int  `json:"total_seconds"`
	SectionSeconds int  `json:"section_seconds"`
	Expired        bool `json:"expired"`
}

func timeRemainingResponse(snap clock.Snapshot) *TimeRemainingResponse {
	return &TimeRemainingResponse{
		TotalSeconds:   int(snap.TotalRemaining / time.Second),
		SectionSeconds: int(snap.SectionRemaining / time.Second),
		Expired:        snap.TotalRemaining <= 0,
	}
}

type ExamResponse struct {
	*models.Exam
	AttemptsUsed int `json:"attempts_used,omitempty"`
}

// ===== SERVICE INTERFACES =====

type ExamService interface {
	Create(ctx context.Context, req *CreateExamRequest, creatorID string) (*ExamResponse, error)
	GetByID(ctx context.Context, id uint, userID string) (*ExamResponse, error)
}

type AttemptService interface {
	// Start returns the student's in-progress attempt for the exam,
	// creating one when none exists. Idempotent from the client's view.
	Start(ctx context.Context, req *StartAttemptRequest, studentID string) (*AttemptResponse, error)

	GetByID(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error)
	TimeRemaining(ctx context.Context, attemptID uint, studentID string) (*TimeRemainingResponse, error)
	SaveProgress(ctx context.Context, attemptID uint, req *SaveProgressRequest, studentID string) (*AttemptResponse, error)

	// Submit finalizes and scores the attempt. Submitting a completed
	// attempt returns the existing result, never an error.
	Submit(ctx context.Context, attemptID uint, req *SubmitAttemptRequest, studentID string) (*AttemptResponse, error)

	ListByExam(ctx context.Context, examID uint, userID string) ([]*AttemptResponse, error)
}

type GradingService interface {
	// GradeSubPart records one manually assigned free-response score and
	// re-runs the aggregation so the breakdown stays consistent.
	GradeSubPart(ctx context.Context, attemptID uint, req *GradeSubPartRequest, graderID string) (*AttemptResponse, error)

	// ExportResults renders every attempt of an exam into a spreadsheet.
	ExportResults(ctx context.Context, examID uint, userID string) (*excelize.File, error)
}
