package scoring

import (
	"fmt"
	"math"
)

// Publish-gate constraints.
const (
	PointsBudget    = 20.0
	BudgetTolerance = 0.01
	MinPoints       = 0.5
	PointsStep      = 0.5
)

// Validation reason codes surfaced to the form editor.
const (
	ReasonNoQuestions             = "no_questions"
	ReasonPointsBudget            = "points_budget_exceeded"
	ReasonPointsBelowMinimum      = "points_below_minimum"
	ReasonInvalidPointsGranular   = "invalid_points_granularity"
	ReasonMissingReference        = "missing_reference_answer"
	ReasonMissingOptions          = "missing_options"
	ReasonMissingCorrectSelection = "missing_correct_answer_selection"
)

// ValidationError pinpoints the first offending question. QuestionIndex is -1
// for form-level failures (empty form, budget mismatch).
type ValidationError struct {
	QuestionIndex int    `json:"question_index"`
	Reason        string `json:"reason"`
}

func (e *ValidationError) Error() string {
	if e.QuestionIndex < 0 {
		return fmt.Sprintf("form invalid: %s", e.Reason)
	}
	return fmt.Sprintf("question %d invalid: %s", e.QuestionIndex, e.Reason)
}

// FullQuestion is the validation view of a question: scoring fields plus the
// option list choice questions render from.
type FullQuestion struct {
	Question
	Options []string
}

// ValidateForm runs the publish gate over the whole question set. It returns
// nil when the form may be published, otherwise the first failure found.
// Per-question checks run in form order before the budget check, so a broken
// question is reported with its index rather than masked by a budget error.
func ValidateForm(questions []FullQuestion) *ValidationError {
	if len(questions) == 0 {
		return &ValidationError{QuestionIndex: -1, Reason: ReasonNoQuestions}
	}
	sum := 0.0
	for i, q := range questions {
		if q.Points < MinPoints {
			return &ValidationError{QuestionIndex: i, Reason: ReasonPointsBelowMinimum}
		}
		if r := math.Mod(q.Points, PointsStep); r > 1e-9 && PointsStep-r > 1e-9 {
			return &ValidationError{QuestionIndex: i, Reason: ReasonInvalidPointsGranular}
		}
		if err := validateAnswerKey(i, q); err != nil {
			return err
		}
		sum += q.Points
	}
	if math.Abs(sum-PointsBudget) > BudgetTolerance {
		return &ValidationError{QuestionIndex: -1, Reason: ReasonPointsBudget}
	}
	return nil
}

func validateAnswerKey(i int, q FullQuestion) *ValidationError {
	switch q.Type {
	case TypeSingleChoiceList, TypeSingleChoiceRadio, TypeMultiChoice:
		if len(nonEmpty(q.Options)) == 0 {
			return &ValidationError{QuestionIndex: i, Reason: ReasonMissingOptions}
		}
		if len(nonEmpty(q.CorrectAnswers)) == 0 {
			return &ValidationError{QuestionIndex: i, Reason: ReasonMissingCorrectSelection}
		}
	default:
		// text and number types need one non-empty reference answer
		if len(nonEmpty(q.CorrectAnswers)) == 0 {
			return &ValidationError{QuestionIndex: i, Reason: ReasonMissingReference}
		}
	}
	return nil
}

func nonEmpty(vals []string) []string {
	out := vals[:0:0]
	for _, v := range vals {
		if trimCollapse(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
