package form

import "github.com/traindesk/evalforms/internal/scoring"

// Form lifecycle.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// Submission lifecycle. A submission stays "submitted" until its correction
// lands; needs_revision parks it in awaiting_resubmission, accepted/rejected
// are terminal.
const (
	SubStatusSubmitted = "submitted"
	SubStatusAwaiting  = "awaiting_resubmission"
	SubStatusAccepted  = "accepted"
	SubStatusRejected  = "rejected"
)

// Correction decisions.
const (
	DecisionAccepted      = "accepted"
	DecisionNeedsRevision = "needs_revision"
	DecisionRejected      = "rejected"
)

type Question struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"` // short_text, long_text, single_choice_list, single_choice_radio, multi_choice, number
	Prompt         string   `json:"prompt"`
	Required       bool     `json:"required,omitempty"`
	Options        []string `json:"options,omitempty"`
	CorrectAnswers []string `json:"correct_answers,omitempty"`
	Points         float64  `json:"points"`

	// Presentation hints for number questions; never used in scoring.
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Step *float64 `json:"step,omitempty"`
	Unit string   `json:"unit,omitempty"`
}

// ScoringView projects the question onto the fields the engine needs.
func (q Question) ScoringView() scoring.Question {
	return scoring.Question{
		ID:             q.ID,
		Type:           q.Type,
		Points:         q.Points,
		CorrectAnswers: q.CorrectAnswers,
	}
}

type Form struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	SessionTag string     `json:"session_tag,omitempty"` // cohort / training session label
	Status     string     `json:"status"`
	OpensAt    int64      `json:"opens_at,omitempty"`  // unix seconds; 0 = open as soon as published
	ClosesAt   int64      `json:"closes_at,omitempty"` // unix seconds; 0 = no deadline
	Questions  []Question `json:"questions"`
	CreatedAt  int64      `json:"created_at,omitempty"`
}

// ScoringQuestions projects all questions for the engine and aggregation.
func (f Form) ScoringQuestions() []scoring.Question {
	out := make([]scoring.Question, len(f.Questions))
	for i, q := range f.Questions {
		out[i] = q.ScoringView()
	}
	return out
}

// ValidationQuestions projects all questions for the publish gate.
func (f Form) ValidationQuestions() []scoring.FullQuestion {
	out := make([]scoring.FullQuestion, len(f.Questions))
	for i, q := range f.Questions {
		out[i] = scoring.FullQuestion{Question: q.ScoringView(), Options: q.Options}
	}
	return out
}

// OpenAt reports whether the form accepts submissions at the given time.
func (f Form) OpenAt(now int64) bool {
	if f.Status != StatusPublished {
		return false
	}
	if f.OpensAt > 0 && now < f.OpensAt {
		return false
	}
	if f.ClosesAt > 0 && now > f.ClosesAt {
		return false
	}
	return true
}

type FormSummary struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	SessionTag    string `json:"session_tag,omitempty"`
	Status        string `json:"status"`
	OpensAt       int64  `json:"opens_at,omitempty"`
	ClosesAt      int64  `json:"closes_at,omitempty"`
	QuestionCount int    `json:"question_count"`
}

// AnswerEntry is one (question, raw answer) pair as submitted. Value vs Values
// is resolved by the question type at the API boundary.
type AnswerEntry struct {
	QuestionID string   `json:"question_id"`
	Value      string   `json:"value,omitempty"`
	Values     []string `json:"values,omitempty"`
}

func (a AnswerEntry) answer() scoring.Answer {
	return scoring.Answer{Value: a.Value, Values: a.Values}
}

// AnswerMap indexes entries by question id; the last entry wins on duplicates.
func AnswerMap(entries []AnswerEntry) map[string]scoring.Answer {
	m := make(map[string]scoring.Answer, len(entries))
	for _, e := range entries {
		m[e.QuestionID] = e.answer()
	}
	return m
}

type Submission struct {
	ID           string        `json:"id"`
	FormID       string        `json:"form_id"`
	RespondentID string        `json:"respondent_id"`
	Version      int           `json:"version"`
	Status       string        `json:"status"`
	Answers      []AnswerEntry `json:"answers"`
	Score        float64       `json:"score"`       // auto points at submission time
	GradeOn20    float64       `json:"grade_on_20"` // normalized, before any override
	SubmittedAt  int64         `json:"submitted_at"`
}

type Correction struct {
	ID             string   `json:"id"`
	SubmissionID   string   `json:"submission_id"`
	Decision       string   `json:"decision"`
	Comment        string   `json:"comment,omitempty"`
	OverrideScore  *float64 `json:"override_score,omitempty"` // manual /20 grade
	GradedBy       string   `json:"graded_by"`
	ResubmissionID string   `json:"resubmission_id,omitempty"` // set once the follow-up arrives
	CreatedAt      int64    `json:"created_at"`
}

// FinalGrade is the grade of record for a corrected submission: the manual
// override when present, the automatic grade otherwise.
func (c Correction) FinalGrade(auto float64) float64 {
	if c.OverrideScore != nil {
		return *c.OverrideScore
	}
	return auto
}

// CorrectionInput is what an administrator supplies when recording a decision.
type CorrectionInput struct {
	Decision      string   `json:"decision"`
	Comment       string   `json:"comment,omitempty"`
	OverrideScore *float64 `json:"override_score,omitempty"`
}

// RespondentResult is one row of a trainee's progress view.
type RespondentResult struct {
	FormID       string   `json:"form_id"`
	FormTitle    string   `json:"form_title"`
	SubmissionID string   `json:"submission_id"`
	Version      int      `json:"version"`
	Status       string   `json:"status"`
	GradeOn20    float64  `json:"grade_on_20"`
	Label        string   `json:"label"`
	Passed       bool     `json:"passed"`
	Override     *float64 `json:"override_score,omitempty"`
}
