package form

import (
	"context"
	"errors"
)

// Sentinel errors shared by the store implementations so handlers can map
// them to status codes.
var (
	ErrNotFound         = errors.New("not found")
	ErrNotEditable      = errors.New("form is published and not editable")
	ErrNotPublished     = errors.New("form is not published")
	ErrAlreadyPublished = errors.New("form is already published")
	ErrFormClosed       = errors.New("form is not open for submissions")
	ErrPendingDecision  = errors.New("previous submission awaits a correction decision")
	ErrSubmissionClosed = errors.New("submission chain is closed")
	ErrAlreadyCorrected = errors.New("submission already has a decision")
	ErrInvalidDecision  = errors.New("invalid correction decision")
	ErrInvalidOverride  = errors.New("override score must be between 0 and 20")
)

type ListOpts struct {
	SessionTag string // filter by cohort tag
	Status     string // draft|published, empty = all
	ViewerRole string // trainees only see published forms
	Limit      int
	Offset     int
}

type SubmissionListOpts struct {
	FormID       string
	RespondentID string
	Status       string
	Limit        int
	Offset       int
}

// Store is the persistence boundary for forms, submissions and corrections.
// Implementations score submissions at write time with the engine they were
// built with; scored results stay derived data and are recomputed on read
// where needed.
type Store interface {
	// Forms. PutForm creates or replaces a draft; published forms are not
	// editable. GetForm is the respondent-safe view: correct answers are
	// stripped and unpublished forms read as not found. GetFormAdmin returns
	// the full definition regardless of status.
	PutForm(ctx context.Context, f Form) (Form, error)
	GetForm(ctx context.Context, id string) (Form, error)
	GetFormAdmin(ctx context.Context, id string) (Form, error)
	ListForms(ctx context.Context, opts ListOpts) ([]FormSummary, error)
	DeleteForm(ctx context.Context, id string) error

	// Lifecycle. Publish runs the publish gate and opens the form to its
	// window; Unpublish returns it to draft; ForceOpen moves the window to
	// "now" on an already-published form.
	Publish(ctx context.Context, id string) (Form, error)
	Unpublish(ctx context.Context, id string) (Form, error)
	ForceOpen(ctx context.Context, id string, closesAt int64) (Form, error)

	// Submissions. SubmitResponse creates version 1 for a new respondent, or
	// the next version when the latest one carries a needs_revision decision.
	SubmitResponse(ctx context.Context, formID, respondentID string, answers []AnswerEntry) (Submission, error)
	GetSubmission(ctx context.Context, id string) (Submission, error)
	ListSubmissions(ctx context.Context, opts SubmissionListOpts) ([]Submission, error)

	// Corrections. Exactly one decision per submission version.
	Correct(ctx context.Context, submissionID string, in CorrectionInput, gradedBy string) (Correction, error)
	CorrectionsFor(ctx context.Context, submissionID string) ([]Correction, error)

	// Progress view across all forms for one respondent.
	ResultsForRespondent(ctx context.Context, respondentID string) ([]RespondentResult, error)
}

func validDecision(d string) bool {
	switch d {
	case DecisionAccepted, DecisionNeedsRevision, DecisionRejected:
		return true
	}
	return false
}

func validOverride(s *float64) bool {
	return s == nil || (*s >= 0 && *s <= 20)
}
