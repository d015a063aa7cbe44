package form

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/traindesk/evalforms/internal/notify"
	"github.com/traindesk/evalforms/internal/scoring"
)

// SQLStore persists forms, submissions and corrections. Questions and answers
// are stored as JSON columns; schema uniqueness backs the "one decision per
// version" and "one row per (form, respondent, version)" rules.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
	engine *scoring.Engine
	sink   notify.Sink
	now    func() int64
}

func NewSQLStore(db *sql.DB, driver string, engine *scoring.Engine, sink notify.Sink) *SQLStore {
	return &SQLStore{
		db:     db,
		driver: driver,
		engine: engine,
		sink:   sink,
		now:    func() int64 { return time.Now().Unix() },
	}
}

func (s *SQLStore) PutForm(ctx context.Context, f Form) (Form, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
		f.CreatedAt = s.now()
	} else {
		prev, err := s.GetFormAdmin(ctx, f.ID)
		switch {
		case err == nil:
			if prev.Status != StatusDraft {
				return Form{}, ErrNotEditable
			}
			f.CreatedAt = prev.CreatedAt
		case errors.Is(err, ErrNotFound):
			f.CreatedAt = s.now()
		default:
			return Form{}, err
		}
	}
	f.Status = StatusDraft
	qj, err := json.Marshal(f.Questions)
	if err != nil {
		return Form{}, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO forms (id,title,session_tag,status,opens_at,closes_at,questions_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, session_tag=EXCLUDED.session_tag,
			status=EXCLUDED.status, opens_at=EXCLUDED.opens_at, closes_at=EXCLUDED.closes_at,
			questions_json=EXCLUDED.questions_json`,
		f.ID, f.Title, f.SessionTag, f.Status, f.OpensAt, f.ClosesAt, string(qj), f.CreatedAt)
	if err != nil {
		return Form{}, err
	}
	return f, nil
}

func (s *SQLStore) GetForm(ctx context.Context, id string) (Form, error) {
	f, err := s.GetFormAdmin(ctx, id)
	if err != nil {
		return Form{}, err
	}
	if f.Status != StatusPublished {
		return Form{}, ErrNotFound
	}
	return stripAnswerKeys(f), nil
}

func (s *SQLStore) GetFormAdmin(ctx context.Context, id string) (Form, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,title,session_tag,status,opens_at,closes_at,questions_json,created_at FROM forms WHERE id=$1`, id)
	return scanForm(row)
}

func (s *SQLStore) ListForms(ctx context.Context, opts ListOpts) ([]FormSummary, error) {
	q := `SELECT id,title,session_tag,status,opens_at,closes_at,questions_json FROM forms`
	where := ""
	args := []any{}
	add := func(cond string, v any) {
		args = append(args, v)
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf(cond, len(args))
	}
	if opts.SessionTag != "" {
		add("session_tag=$%d", opts.SessionTag)
	}
	if opts.Status != "" {
		add("status=$%d", opts.Status)
	}
	if opts.ViewerRole == "trainee" {
		add("status=$%d", StatusPublished)
	}
	q += where + ` ORDER BY created_at DESC, id`
	q += fmt.Sprintf(" LIMIT %d OFFSET %d", clampLimit(opts.Limit), clampOffset(opts.Offset))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []FormSummary{}
	for rows.Next() {
		var fs FormSummary
		var qjson string
		if err := rows.Scan(&fs.ID, &fs.Title, &fs.SessionTag, &fs.Status, &fs.OpensAt, &fs.ClosesAt, &qjson); err != nil {
			return nil, err
		}
		var qs []Question
		if err := json.Unmarshal([]byte(qjson), &qs); err == nil {
			fs.QuestionCount = len(qs)
		}
		out = append(out, fs)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteForm(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM forms WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Publish(ctx context.Context, id string) (Form, error) {
	f, err := s.GetFormAdmin(ctx, id)
	if err != nil {
		return Form{}, err
	}
	if f.Status == StatusPublished {
		return Form{}, ErrAlreadyPublished
	}
	if verr := scoring.ValidateForm(f.ValidationQuestions()); verr != nil {
		return Form{}, verr
	}
	if err := s.setStatus(ctx, id, StatusPublished); err != nil {
		return Form{}, err
	}
	f.Status = StatusPublished
	notify.Emit(ctx, s.sink, notify.EventFormPublished, f.ID, f)
	return f, nil
}

func (s *SQLStore) Unpublish(ctx context.Context, id string) (Form, error) {
	f, err := s.GetFormAdmin(ctx, id)
	if err != nil {
		return Form{}, err
	}
	if f.Status != StatusPublished {
		return Form{}, ErrNotPublished
	}
	if err := s.setStatus(ctx, id, StatusDraft); err != nil {
		return Form{}, err
	}
	f.Status = StatusDraft
	return f, nil
}

func (s *SQLStore) ForceOpen(ctx context.Context, id string, closesAt int64) (Form, error) {
	f, err := s.GetFormAdmin(ctx, id)
	if err != nil {
		return Form{}, err
	}
	if f.Status != StatusPublished {
		return Form{}, ErrNotPublished
	}
	f.OpensAt = s.now()
	if closesAt > 0 {
		f.ClosesAt = closesAt
	}
	_, err = s.db.ExecContext(ctx, `UPDATE forms SET opens_at=$1, closes_at=$2 WHERE id=$3`,
		f.OpensAt, f.ClosesAt, id)
	if err != nil {
		return Form{}, err
	}
	return f, nil
}

func (s *SQLStore) setStatus(ctx context.Context, id, status string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE forms SET status=$1 WHERE id=$2`, status, id)
	return err
}

func (s *SQLStore) SubmitResponse(ctx context.Context, formID, respondentID string, answers []AnswerEntry) (Submission, error) {
	f, err := s.GetFormAdmin(ctx, formID)
	if err != nil {
		return Submission{}, err
	}
	now := s.now()
	if f.Status != StatusPublished {
		return Submission{}, ErrNotPublished
	}
	if !f.OpenAt(now) {
		return Submission{}, ErrFormClosed
	}

	version := 1
	prevID := ""
	latest, err := s.latestSubmission(ctx, formID, respondentID)
	switch {
	case err == nil:
		switch latest.Status {
		case SubStatusSubmitted:
			return Submission{}, ErrPendingDecision
		case SubStatusAccepted, SubStatusRejected:
			return Submission{}, ErrSubmissionClosed
		case SubStatusAwaiting:
			version = latest.Version + 1
			prevID = latest.ID
		}
	case errors.Is(err, ErrNotFound):
	default:
		return Submission{}, err
	}

	scored := s.engine.ScoreAll(f.ScoringQuestions(), AnswerMap(answers))
	summary := scoring.Aggregate(scored, f.ScoringQuestions())
	sub := Submission{
		ID:           uuid.NewString(),
		FormID:       formID,
		RespondentID: respondentID,
		Version:      version,
		Status:       SubStatusSubmitted,
		Answers:      answers,
		Score:        summary.TotalPoints,
		GradeOn20:    summary.GradeOn20,
		SubmittedAt:  now,
	}
	aj, err := json.Marshal(sub.Answers)
	if err != nil {
		return Submission{}, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO submissions (id,form_id,respondent_id,version,status,score,grade,answers_json,submitted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		sub.ID, sub.FormID, sub.RespondentID, sub.Version, sub.Status, sub.Score, sub.GradeOn20, string(aj), sub.SubmittedAt)
	if err != nil {
		return Submission{}, err
	}
	if prevID != "" {
		_, _ = s.db.ExecContext(ctx, `UPDATE corrections SET resubmission_id=$1 WHERE submission_id=$2`, sub.ID, prevID)
	}
	notify.Emit(ctx, s.sink, notify.EventSubmissionReceived, sub.ID, sub)
	return sub, nil
}

func (s *SQLStore) GetSubmission(ctx context.Context, id string) (Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,form_id,respondent_id,version,status,score,grade,answers_json,submitted_at FROM submissions WHERE id=$1`, id)
	return scanSubmission(row)
}

func (s *SQLStore) latestSubmission(ctx context.Context, formID, respondentID string) (Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,form_id,respondent_id,version,status,score,grade,answers_json,submitted_at
		 FROM submissions WHERE form_id=$1 AND respondent_id=$2 ORDER BY version DESC LIMIT 1`,
		formID, respondentID)
	return scanSubmission(row)
}

func (s *SQLStore) ListSubmissions(ctx context.Context, opts SubmissionListOpts) ([]Submission, error) {
	q := `SELECT id,form_id,respondent_id,version,status,score,grade,answers_json,submitted_at FROM submissions`
	where := ""
	args := []any{}
	add := func(cond string, v any) {
		args = append(args, v)
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf(cond, len(args))
	}
	if opts.FormID != "" {
		add("form_id=$%d", opts.FormID)
	}
	if opts.RespondentID != "" {
		add("respondent_id=$%d", opts.RespondentID)
	}
	if opts.Status != "" {
		add("status=$%d", opts.Status)
	}
	q += where + ` ORDER BY submitted_at DESC, id`
	q += fmt.Sprintf(" LIMIT %d OFFSET %d", clampLimit(opts.Limit), clampOffset(opts.Offset))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *SQLStore) Correct(ctx context.Context, submissionID string, in CorrectionInput, gradedBy string) (Correction, error) {
	sub, err := s.GetSubmission(ctx, submissionID)
	if err != nil {
		return Correction{}, err
	}
	if sub.Status != SubStatusSubmitted {
		return Correction{}, ErrAlreadyCorrected
	}
	if !validDecision(in.Decision) {
		return Correction{}, ErrInvalidDecision
	}
	if !validOverride(in.OverrideScore) {
		return Correction{}, ErrInvalidOverride
	}
	c := Correction{
		ID:            uuid.NewString(),
		SubmissionID:  submissionID,
		Decision:      in.Decision,
		Comment:       in.Comment,
		OverrideScore: in.OverrideScore,
		GradedBy:      gradedBy,
		CreatedAt:     s.now(),
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Correction{}, err
	}
	defer tx.Rollback()
	var override sql.NullFloat64
	if c.OverrideScore != nil {
		override = sql.NullFloat64{Float64: *c.OverrideScore, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO corrections (id,submission_id,decision,comment,override_score,graded_by,resubmission_id,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,'',$7)`,
		c.ID, c.SubmissionID, c.Decision, c.Comment, override, c.GradedBy, c.CreatedAt); err != nil {
		return Correction{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE submissions SET status=$1 WHERE id=$2`,
		statusAfterDecision(in.Decision), submissionID); err != nil {
		return Correction{}, err
	}
	if err := tx.Commit(); err != nil {
		return Correction{}, err
	}
	notify.Emit(ctx, s.sink, notify.EventCorrectionRecorded, submissionID, c)
	return c, nil
}

func (s *SQLStore) CorrectionsFor(ctx context.Context, submissionID string) ([]Correction, error) {
	if _, err := s.GetSubmission(ctx, submissionID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,submission_id,decision,comment,override_score,graded_by,resubmission_id,created_at
		 FROM corrections WHERE submission_id=$1 ORDER BY created_at`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Correction{}
	for rows.Next() {
		var c Correction
		var override sql.NullFloat64
		if err := rows.Scan(&c.ID, &c.SubmissionID, &c.Decision, &c.Comment, &override, &c.GradedBy, &c.ResubmissionID, &c.CreatedAt); err != nil {
			return nil, err
		}
		if override.Valid {
			v := override.Float64
			c.OverrideScore = &v
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) ResultsForRespondent(ctx context.Context, respondentID string) ([]RespondentResult, error) {
	// Latest version per form, with the correction override when present.
	rows, err := s.db.QueryContext(ctx, `
		SELECT sub.form_id, f.title, sub.id, sub.version, sub.status, sub.grade, c.override_score
		FROM submissions sub
		JOIN forms f ON f.id = sub.form_id
		LEFT JOIN corrections c ON c.submission_id = sub.id
		WHERE sub.respondent_id=$1
		  AND sub.version = (SELECT MAX(version) FROM submissions s2
		                     WHERE s2.form_id=sub.form_id AND s2.respondent_id=sub.respondent_id)
		ORDER BY f.created_at DESC, sub.form_id`, respondentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []RespondentResult{}
	for rows.Next() {
		var r RespondentResult
		var override sql.NullFloat64
		if err := rows.Scan(&r.FormID, &r.FormTitle, &r.SubmissionID, &r.Version, &r.Status, &r.GradeOn20, &override); err != nil {
			return nil, err
		}
		if override.Valid {
			v := override.Float64
			r.Override = &v
			r.GradeOn20 = v
		}
		r.Label = scoring.GradeLabel(r.GradeOn20)
		r.Passed = r.GradeOn20 >= 10
		out = append(out, r)
	}
	return out, rows.Err()
}

// Paging values come straight from query parameters; negative numbers are
// rejected by sqlite/postgres, so clamp here.
func clampLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

func clampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

// --- scanning ---

type rowScanner interface{ Scan(dest ...any) error }

func scanForm(row rowScanner) (Form, error) {
	var f Form
	var qjson string
	if err := row.Scan(&f.ID, &f.Title, &f.SessionTag, &f.Status, &f.OpensAt, &f.ClosesAt, &qjson, &f.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Form{}, ErrNotFound
		}
		return Form{}, err
	}
	if err := json.Unmarshal([]byte(qjson), &f.Questions); err != nil {
		return Form{}, err
	}
	return f, nil
}

func scanSubmission(row rowScanner) (Submission, error) {
	var sub Submission
	var ajson string
	if err := row.Scan(&sub.ID, &sub.FormID, &sub.RespondentID, &sub.Version, &sub.Status, &sub.Score, &sub.GradeOn20, &ajson, &sub.SubmittedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Submission{}, ErrNotFound
		}
		return Submission{}, err
	}
	if err := json.Unmarshal([]byte(ajson), &sub.Answers); err != nil {
		sub.Answers = nil
	}
	return sub, nil
}
