package validator

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ccingram94/galileo-sub000/internal/models"
)

// ExamCreateRequest is the authoring payload for a new exam definition.
type ExamCreateRequest struct {
	Title        string  `json:"title" validate:"required,exam_title"`
	Description  *string `json:"description" validate:"omitempty,max=1000"`
	PassingScore float64 `json:"passing_score" validate:"passing_score"`
	MaxAttempts  int     `json:"max_attempts" validate:"required,max_attempts"`

	AvailableFrom  *time.Time `json:"available_from"`
	AvailableUntil *time.Time `json:"available_until" validate:"omitempty,future_date"`

	ShuffleQuestions    bool `json:"shuffle_questions"`
	ShuffleOptions      bool `json:"shuffle_options"`
	ShowCorrectAnswers  bool `json:"show_correct_answers"`
	AllowReview         bool `json:"allow_review"`
	RequireProctoring   bool `json:"require_proctoring"`
	AllowBackNavigation bool `json:"allow_back_navigation"`

	MCWeight *float64 `json:"mc_weight" validate:"omitempty,score_weight"`
	FRWeight *float64 `json:"fr_weight" validate:"omitempty,score_weight"`

	Groups []models.QuestionGroup `json:"groups" validate:"required,min=1"`
}

// ValidateExamCreate applies struct rules plus the authoring business rules
// that cross field boundaries.
func (v *Validator) ValidateExamCreate(req *ExamCreateRequest) ValidationErrors {
	errors := v.Validate(req)
	errors = append(errors, v.validateExamBusinessRules(req)...)
	return errors
}

func (v *Validator) validateExamBusinessRules(req *ExamCreateRequest) ValidationErrors {
	var errors ValidationErrors

	// Weights come as a pair, and a pair must cover the whole score.
	if (req.MCWeight == nil) != (req.FRWeight == nil) {
		errors = append(errors, ValidationError{
			Field:   "mc_weight",
			Message: "mc_weight and fr_weight must be set together",
			Rule:    "business_logic",
		})
	}
	if req.MCWeight != nil && req.FRWeight != nil {
		if sum := *req.MCWeight + *req.FRWeight; math.Abs(sum-1.0) > 1e-9 {
			errors = append(errors, ValidationError{
				Field:   "fr_weight",
				Message: "mc_weight and fr_weight must sum to 1",
				Value:   sum,
				Rule:    "business_logic",
			})
		}
	}

	if req.AvailableFrom != nil && req.AvailableUntil != nil && !req.AvailableUntil.After(*req.AvailableFrom) {
		errors = append(errors, ValidationError{
			Field:   "available_until",
			Message: "must be after available_from",
			Value:   req.AvailableUntil,
			Rule:    "business_logic",
		})
	}

	for i, group := range req.Groups {
		errors = append(errors, v.validateGroup(i, group)...)
	}
	return errors
}

func (v *Validator) validateGroup(idx int, group models.QuestionGroup) ValidationErrors {
	var errors ValidationErrors
	field := func(name string) string { return fmt.Sprintf("groups[%d].%s", idx, name) }

	if group.Type != models.MultipleChoice && group.Type != models.FreeResponse {
		errors = append(errors, ValidationError{
			Field:   field("type"),
			Message: "must be multiple_choice or free_response",
			Value:   group.Type,
			Rule:    "business_logic",
		})
	}
	if group.TimeLimitMinutes < 1 || group.TimeLimitMinutes > 300 {
		errors = append(errors, ValidationError{
			Field:   field("time_limit_minutes"),
			Message: "must be between 1 and 300 minutes",
			Value:   group.TimeLimitMinutes,
			Rule:    "section_time_limit",
		})
	}
	for qi, q := range group.Questions {
		if strings.TrimSpace(q.Text) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("groups[%d].questions[%d].text", idx, qi),
				Message: "is required",
				Rule:    "required",
			})
		}
		if q.Points < 0 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("groups[%d].questions[%d].points", idx, qi),
				Message: "must not be negative",
				Value:   q.Points,
				Rule:    "business_logic",
			})
		}
		// A zero-point sub-part could never earn anything; the question
		// would sit permanently below its maximum.
		for pi, part := range q.Parts {
			for si, sub := range part.SubParts {
				if sub.Points < 1 {
					errors = append(errors, ValidationError{
						Field:   fmt.Sprintf("groups[%d].questions[%d].parts[%d].sub_parts[%d].points", idx, qi, pi, si),
						Message: "must be at least 1",
						Value:   sub.Points,
						Rule:    "business_logic",
					})
				}
			}
		}
	}
	return errors
}

// ToExam builds the persistable model from a validated request.
func (req *ExamCreateRequest) ToExam(createdBy string) (*models.Exam, error) {
	exam := &models.Exam{
		Title:               req.Title,
		Description:         req.Description,
		PassingScore:        req.PassingScore,
		MaxAttempts:         req.MaxAttempts,
		AvailableFrom:       req.AvailableFrom,
		AvailableUntil:      req.AvailableUntil,
		ShuffleQuestions:    req.ShuffleQuestions,
		ShuffleOptions:      req.ShuffleOptions,
		ShowCorrectAnswers:  req.ShowCorrectAnswers,
		AllowReview:         req.AllowReview,
		RequireProctoring:   req.RequireProctoring,
		AllowBackNavigation: req.AllowBackNavigation,
		MCWeight:            req.MCWeight,
		FRWeight:            req.FRWeight,
		CreatedBy:           createdBy,
	}
	if err := exam.SetQuestionGroups(req.Groups); err != nil {
		return nil, err
	}
	return exam, nil
}
