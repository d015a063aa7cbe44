package form

import (
	"context"
	"errors"
	"testing"

	"github.com/traindesk/evalforms/internal/scoring"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	return NewInMemoryStore(scoring.NewEngine(), nil)
}

func twoQuestionForm() Form {
	return Form{
		Title:      "Day 3 — rigging basics",
		SessionTag: "2026-03-lyon",
		Questions: []Question{
			{ID: "q1", Type: "single_choice_radio", Prompt: "Pick B", Options: []string{"A", "B"}, CorrectAnswers: []string{"B"}, Points: 10},
			{ID: "q2", Type: "single_choice_radio", Prompt: "Pick B again", Options: []string{"A", "B"}, CorrectAnswers: []string{"B"}, Points: 10},
		},
	}
}

func mustPublish(t *testing.T, s Store, f Form) Form {
	t.Helper()
	ctx := context.Background()
	saved, err := s.PutForm(ctx, f)
	if err != nil {
		t.Fatalf("put form: %v", err)
	}
	pub, err := s.Publish(ctx, saved.ID)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	return pub
}

func TestFormLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f, err := s.PutForm(ctx, twoQuestionForm())
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if f.Status != StatusDraft {
		t.Fatalf("new form status=%q, want draft", f.Status)
	}

	pub, err := s.Publish(ctx, f.ID)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if pub.Status != StatusPublished {
		t.Fatalf("status=%q, want published", pub.Status)
	}

	// published forms are frozen
	if _, err := s.PutForm(ctx, pub); !errors.Is(err, ErrNotEditable) {
		t.Fatalf("edit published: err=%v, want ErrNotEditable", err)
	}
	if _, err := s.Publish(ctx, f.ID); !errors.Is(err, ErrAlreadyPublished) {
		t.Fatalf("double publish: err=%v, want ErrAlreadyPublished", err)
	}

	// unpublish returns to editable draft
	back, err := s.Unpublish(ctx, f.ID)
	if err != nil || back.Status != StatusDraft {
		t.Fatalf("unpublish: %v %q", err, back.Status)
	}
	if _, err := s.PutForm(ctx, back); err != nil {
		t.Fatalf("edit re-drafted form: %v", err)
	}

	if err := s.DeleteForm(ctx, f.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetFormAdmin(ctx, f.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get deleted: %v", err)
	}
}

func TestPublishRunsGate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bad := twoQuestionForm()
	bad.Questions[1].Points = 5 // sum 15
	f, err := s.PutForm(ctx, bad)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	_, err = s.Publish(ctx, f.ID)
	var verr *scoring.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("publish of invalid form: %v, want ValidationError", err)
	}
	if verr.Reason != scoring.ReasonPointsBudget {
		t.Fatalf("reason=%q", verr.Reason)
	}
	// the form stays draft
	got, _ := s.GetFormAdmin(ctx, f.ID)
	if got.Status != StatusDraft {
		t.Fatalf("status=%q after failed publish", got.Status)
	}
}

func TestForceOpenOverridesWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f := twoQuestionForm()
	f.OpensAt = 4102444800 // far future
	pub := mustPublish(t, s, f)

	if _, err := s.SubmitResponse(ctx, pub.ID, "trainee-1", nil); !errors.Is(err, ErrFormClosed) {
		t.Fatalf("submit before window: %v, want ErrFormClosed", err)
	}

	opened, err := s.ForceOpen(ctx, pub.ID, 0)
	if err != nil {
		t.Fatalf("force open: %v", err)
	}
	if opened.Status != StatusPublished {
		t.Fatalf("force-open left published state: %q", opened.Status)
	}
	if _, err := s.SubmitResponse(ctx, pub.ID, "trainee-1", nil); err != nil {
		t.Fatalf("submit after force open: %v", err)
	}

	// force-open only applies to published forms
	d, _ := s.PutForm(ctx, twoQuestionForm())
	if _, err := s.ForceOpen(ctx, d.ID, 0); !errors.Is(err, ErrNotPublished) {
		t.Fatalf("force open draft: %v", err)
	}
}

func TestSubmissionScoring(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pub := mustPublish(t, s, twoQuestionForm())

	sub, err := s.SubmitResponse(ctx, pub.ID, "trainee-1", []AnswerEntry{
		{QuestionID: "q1", Value: "B"},
		{QuestionID: "q2", Value: "A"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Version != 1 || sub.Status != SubStatusSubmitted {
		t.Fatalf("version=%d status=%q", sub.Version, sub.Status)
	}
	if sub.Score != 10 || sub.GradeOn20 != 10 {
		t.Fatalf("score=%v grade=%v, want 10/10", sub.Score, sub.GradeOn20)
	}
}

func TestSubmissionToDraftFormRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f, _ := s.PutForm(ctx, twoQuestionForm())
	if _, err := s.SubmitResponse(ctx, f.ID, "trainee-1", nil); !errors.Is(err, ErrNotPublished) {
		t.Fatalf("err=%v, want ErrNotPublished", err)
	}
}

func TestCorrectionStateMachine(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pub := mustPublish(t, s, twoQuestionForm())

	v1, err := s.SubmitResponse(ctx, pub.ID, "trainee-1", []AnswerEntry{{QuestionID: "q1", Value: "A"}})
	if err != nil {
		t.Fatalf("submit v1: %v", err)
	}

	// no resubmission while the decision is pending
	if _, err := s.SubmitResponse(ctx, pub.ID, "trainee-1", nil); !errors.Is(err, ErrPendingDecision) {
		t.Fatalf("resubmit before decision: %v", err)
	}

	c1, err := s.Correct(ctx, v1.ID, CorrectionInput{Decision: DecisionNeedsRevision, Comment: "q1 is wrong, retry"}, "trainer-9")
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	if c1.GradedBy != "trainer-9" {
		t.Fatalf("graded_by=%q", c1.GradedBy)
	}

	// exactly one decision per version
	if _, err := s.Correct(ctx, v1.ID, CorrectionInput{Decision: DecisionAccepted}, "trainer-9"); !errors.Is(err, ErrAlreadyCorrected) {
		t.Fatalf("second decision: %v", err)
	}

	got, _ := s.GetSubmission(ctx, v1.ID)
	if got.Status != SubStatusAwaiting {
		t.Fatalf("v1 status=%q, want awaiting_resubmission", got.Status)
	}

	v2, err := s.SubmitResponse(ctx, pub.ID, "trainee-1", []AnswerEntry{
		{QuestionID: "q1", Value: "B"},
		{QuestionID: "q2", Value: "B"},
	})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if v2.Version != 2 {
		t.Fatalf("version=%d, want 2", v2.Version)
	}

	// the original correction now links both sides for audit
	corrs, err := s.CorrectionsFor(ctx, v1.ID)
	if err != nil || len(corrs) != 1 {
		t.Fatalf("corrections: %v %d", err, len(corrs))
	}
	if corrs[0].ResubmissionID != v2.ID {
		t.Fatalf("resubmission link=%q, want %q", corrs[0].ResubmissionID, v2.ID)
	}

	// accept the resubmission; the chain is closed
	if _, err := s.Correct(ctx, v2.ID, CorrectionInput{Decision: DecisionAccepted}, "trainer-9"); err != nil {
		t.Fatalf("accept v2: %v", err)
	}
	if _, err := s.SubmitResponse(ctx, pub.ID, "trainee-1", nil); !errors.Is(err, ErrSubmissionClosed) {
		t.Fatalf("submit after acceptance: %v", err)
	}
}

func TestCorrectionRejectedIsTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pub := mustPublish(t, s, twoQuestionForm())

	v1, _ := s.SubmitResponse(ctx, pub.ID, "trainee-2", nil)
	if _, err := s.Correct(ctx, v1.ID, CorrectionInput{Decision: DecisionRejected, Comment: "blank copy"}, "trainer-9"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := s.SubmitResponse(ctx, pub.ID, "trainee-2", nil); !errors.Is(err, ErrSubmissionClosed) {
		t.Fatalf("submit after rejection: %v", err)
	}
}

func TestCorrectionValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pub := mustPublish(t, s, twoQuestionForm())
	v1, _ := s.SubmitResponse(ctx, pub.ID, "trainee-3", nil)

	if _, err := s.Correct(ctx, v1.ID, CorrectionInput{Decision: "maybe"}, "t"); !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("bad decision: %v", err)
	}
	over := 25.0
	if _, err := s.Correct(ctx, v1.ID, CorrectionInput{Decision: DecisionAccepted, OverrideScore: &over}, "t"); !errors.Is(err, ErrInvalidOverride) {
		t.Fatalf("bad override: %v", err)
	}
	ok := 12.5
	if _, err := s.Correct(ctx, v1.ID, CorrectionInput{Decision: DecisionAccepted, OverrideScore: &ok}, "t"); err != nil {
		t.Fatalf("valid override: %v", err)
	}
}

func TestResultsForRespondent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pub := mustPublish(t, s, twoQuestionForm())

	v1, _ := s.SubmitResponse(ctx, pub.ID, "trainee-4", []AnswerEntry{
		{QuestionID: "q1", Value: "B"},
		{QuestionID: "q2", Value: "B"},
	})
	over := 15.0
	if _, err := s.Correct(ctx, v1.ID, CorrectionInput{Decision: DecisionAccepted, OverrideScore: &over}, "trainer-9"); err != nil {
		t.Fatalf("correct: %v", err)
	}

	res, err := s.ResultsForRespondent(ctx, "trainee-4")
	if err != nil || len(res) != 1 {
		t.Fatalf("results: %v %d", err, len(res))
	}
	r := res[0]
	if r.GradeOn20 != 15 || r.Override == nil || *r.Override != 15 {
		t.Fatalf("override not applied: %+v", r)
	}
	if r.Label != "very_good" || !r.Passed {
		t.Fatalf("label=%q passed=%v", r.Label, r.Passed)
	}
}

func TestGetFormStripsAnswerKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := mustPublish(t, s, twoQuestionForm())

	safe, err := s.GetForm(ctx, f.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for i, q := range safe.Questions {
		if q.CorrectAnswers != nil {
			t.Fatalf("question %d leaked correct answers", i)
		}
	}
	full, _ := s.GetFormAdmin(ctx, f.ID)
	if full.Questions[0].CorrectAnswers == nil {
		t.Fatal("admin view must keep answer keys")
	}
}

func TestGetFormHidesDrafts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f, err := s.PutForm(ctx, twoQuestionForm())
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	if _, err := s.GetForm(ctx, f.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("draft via respondent view: err=%v, want ErrNotFound", err)
	}
	if _, err := s.GetFormAdmin(ctx, f.ID); err != nil {
		t.Fatalf("draft via admin view: %v", err)
	}

	if _, err := s.Publish(ctx, f.ID); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := s.GetForm(ctx, f.ID); err != nil {
		t.Fatalf("published via respondent view: %v", err)
	}
}

func TestListFormsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := twoQuestionForm()
	a.SessionTag = "s1"
	fa, _ := s.PutForm(ctx, a)
	if _, err := s.Publish(ctx, fa.ID); err != nil {
		t.Fatalf("publish: %v", err)
	}
	b := twoQuestionForm()
	b.SessionTag = "s2"
	if _, err := s.PutForm(ctx, b); err != nil {
		t.Fatalf("put: %v", err)
	}

	all, _ := s.ListForms(ctx, ListOpts{})
	if len(all) != 2 {
		t.Fatalf("all=%d", len(all))
	}
	pubOnly, _ := s.ListForms(ctx, ListOpts{ViewerRole: "trainee"})
	if len(pubOnly) != 1 || pubOnly[0].Status != StatusPublished {
		t.Fatalf("trainee view: %+v", pubOnly)
	}
	byTag, _ := s.ListForms(ctx, ListOpts{SessionTag: "s2"})
	if len(byTag) != 1 || byTag[0].SessionTag != "s2" {
		t.Fatalf("tag filter: %+v", byTag)
	}
}

func TestListPagingToleratesBadRanges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pub := mustPublish(t, s, twoQuestionForm())

	// limit/offset come straight from query strings; junk must degrade, not panic
	for _, opts := range []ListOpts{
		{Offset: -1},
		{Limit: -5, Offset: -5},
		{Offset: 1000},
	} {
		if _, err := s.ListForms(ctx, opts); err != nil {
			t.Fatalf("list forms %+v: %v", opts, err)
		}
	}
	got, err := s.ListForms(ctx, ListOpts{Offset: -1})
	if err != nil || len(got) != 1 {
		t.Fatalf("negative offset: %v %d", err, len(got))
	}

	if _, err := s.SubmitResponse(ctx, pub.ID, "trainee-1", nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	subs, err := s.ListSubmissions(ctx, SubmissionListOpts{FormID: pub.ID, Offset: -3, Limit: -3})
	if err != nil || len(subs) != 1 {
		t.Fatalf("negative submission paging: %v %d", err, len(subs))
	}
}
