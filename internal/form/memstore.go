package form

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/traindesk/evalforms/internal/notify"
	"github.com/traindesk/evalforms/internal/scoring"
)

// memoryStore is the non-persistent Store used in tests and single-user dev
// runs. Behavior mirrors SQLStore.
type memoryStore struct {
	mu     sync.RWMutex
	engine *scoring.Engine
	sink   notify.Sink
	now    func() int64

	forms map[string]Form
	subs  map[string]Submission
	corrs map[string]Correction // keyed by submission id: one decision per version
}

func NewInMemoryStore(engine *scoring.Engine, sink notify.Sink) Store {
	return &memoryStore{
		engine: engine,
		sink:   sink,
		now:    func() int64 { return time.Now().Unix() },
		forms:  map[string]Form{},
		subs:   map[string]Submission{},
		corrs:  map[string]Correction{},
	}
}

func (m *memoryStore) PutForm(_ context.Context, f Form) (Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if prev, ok := m.forms[f.ID]; ok {
		if prev.Status != StatusDraft {
			return Form{}, ErrNotEditable
		}
		f.CreatedAt = prev.CreatedAt
	} else {
		f.CreatedAt = m.now()
	}
	f.Status = StatusDraft
	m.forms[f.ID] = f
	return f, nil
}

func (m *memoryStore) GetForm(ctx context.Context, id string) (Form, error) {
	f, err := m.GetFormAdmin(ctx, id)
	if err != nil {
		return Form{}, err
	}
	if f.Status != StatusPublished {
		return Form{}, ErrNotFound
	}
	return stripAnswerKeys(f), nil
}

func (m *memoryStore) GetFormAdmin(_ context.Context, id string) (Form, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.forms[id]
	if !ok {
		return Form{}, ErrNotFound
	}
	return f, nil
}

func (m *memoryStore) ListForms(_ context.Context, opts ListOpts) ([]FormSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]FormSummary, 0, len(m.forms))
	for _, f := range m.forms {
		if !matchForm(f, opts) {
			continue
		}
		out = append(out, FormSummary{
			ID:            f.ID,
			Title:         f.Title,
			SessionTag:    f.SessionTag,
			Status:        f.Status,
			OpensAt:       f.OpensAt,
			ClosesAt:      f.ClosesAt,
			QuestionCount: len(f.Questions),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, opts.Limit, opts.Offset), nil
}

func (m *memoryStore) DeleteForm(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.forms[id]; !ok {
		return ErrNotFound
	}
	delete(m.forms, id)
	for sid, s := range m.subs {
		if s.FormID == id {
			delete(m.subs, sid)
			delete(m.corrs, sid)
		}
	}
	return nil
}

func (m *memoryStore) Publish(ctx context.Context, id string) (Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.forms[id]
	if !ok {
		return Form{}, ErrNotFound
	}
	if f.Status == StatusPublished {
		return Form{}, ErrAlreadyPublished
	}
	if verr := scoring.ValidateForm(f.ValidationQuestions()); verr != nil {
		return Form{}, verr
	}
	f.Status = StatusPublished
	m.forms[id] = f
	notify.Emit(ctx, m.sink, notify.EventFormPublished, f.ID, f)
	return f, nil
}

func (m *memoryStore) Unpublish(_ context.Context, id string) (Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.forms[id]
	if !ok {
		return Form{}, ErrNotFound
	}
	if f.Status != StatusPublished {
		return Form{}, ErrNotPublished
	}
	f.Status = StatusDraft
	m.forms[id] = f
	return f, nil
}

func (m *memoryStore) ForceOpen(_ context.Context, id string, closesAt int64) (Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.forms[id]
	if !ok {
		return Form{}, ErrNotFound
	}
	if f.Status != StatusPublished {
		return Form{}, ErrNotPublished
	}
	f.OpensAt = m.now()
	if closesAt > 0 {
		f.ClosesAt = closesAt
	}
	m.forms[id] = f
	return f, nil
}

func (m *memoryStore) SubmitResponse(ctx context.Context, formID, respondentID string, answers []AnswerEntry) (Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.forms[formID]
	if !ok {
		return Submission{}, ErrNotFound
	}
	now := m.now()
	if f.Status != StatusPublished {
		return Submission{}, ErrNotPublished
	}
	if !f.OpenAt(now) {
		return Submission{}, ErrFormClosed
	}

	version := 1
	if latest, ok := m.latestSubmission(formID, respondentID); ok {
		switch latest.Status {
		case SubStatusSubmitted:
			return Submission{}, ErrPendingDecision
		case SubStatusAccepted, SubStatusRejected:
			return Submission{}, ErrSubmissionClosed
		case SubStatusAwaiting:
			version = latest.Version + 1
		}
	}

	scored := m.engine.ScoreAll(f.ScoringQuestions(), AnswerMap(answers))
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
	m.subs[sub.ID] = sub
	if version > 1 {
		m.linkResubmission(formID, respondentID, version-1, sub.ID)
	}
	notify.Emit(ctx, m.sink, notify.EventSubmissionReceived, sub.ID, sub)
	return sub, nil
}

func (m *memoryStore) GetSubmission(_ context.Context, id string) (Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subs[id]
	if !ok {
		return Submission{}, ErrNotFound
	}
	return s, nil
}

func (m *memoryStore) ListSubmissions(_ context.Context, opts SubmissionListOpts) ([]Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Submission, 0)
	for _, s := range m.subs {
		if opts.FormID != "" && s.FormID != opts.FormID {
			continue
		}
		if opts.RespondentID != "" && s.RespondentID != opts.RespondentID {
			continue
		}
		if opts.Status != "" && s.Status != opts.Status {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt != out[j].SubmittedAt {
			return out[i].SubmittedAt > out[j].SubmittedAt
		}
		return out[i].ID < out[j].ID
	})
	return page(out, opts.Limit, opts.Offset), nil
}

func (m *memoryStore) Correct(ctx context.Context, submissionID string, in CorrectionInput, gradedBy string) (Correction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[submissionID]
	if !ok {
		return Correction{}, ErrNotFound
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
		CreatedAt:     m.now(),
	}
	m.corrs[submissionID] = c
	sub.Status = statusAfterDecision(in.Decision)
	m.subs[submissionID] = sub
	notify.Emit(ctx, m.sink, notify.EventCorrectionRecorded, submissionID, c)
	return c, nil
}

func (m *memoryStore) CorrectionsFor(_ context.Context, submissionID string) ([]Correction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.subs[submissionID]; !ok {
		return nil, ErrNotFound
	}
	if c, ok := m.corrs[submissionID]; ok {
		return []Correction{c}, nil
	}
	return []Correction{}, nil
}

func (m *memoryStore) ResultsForRespondent(_ context.Context, respondentID string) ([]RespondentResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RespondentResult, 0)
	for fid, f := range m.forms {
		latest, ok := m.latestSubmission(fid, respondentID)
		if !ok {
			continue
		}
		grade := latest.GradeOn20
		var override *float64
		if c, ok := m.corrs[latest.ID]; ok && c.OverrideScore != nil {
			grade = *c.OverrideScore
			override = c.OverrideScore
		}
		out = append(out, RespondentResult{
			FormID:       fid,
			FormTitle:    f.Title,
			SubmissionID: latest.ID,
			Version:      latest.Version,
			Status:       latest.Status,
			GradeOn20:    grade,
			Label:        scoring.GradeLabel(grade),
			Passed:       grade >= 10,
			Override:     override,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FormID < out[j].FormID })
	return out, nil
}

// --- helpers ---

func (m *memoryStore) latestSubmission(formID, respondentID string) (Submission, bool) {
	var best Submission
	found := false
	for _, s := range m.subs {
		if s.FormID != formID || s.RespondentID != respondentID {
			continue
		}
		if !found || s.Version > best.Version {
			best = s
			found = true
		}
	}
	return best, found
}

func (m *memoryStore) linkResubmission(formID, respondentID string, version int, resubID string) {
	for _, s := range m.subs {
		if s.FormID == formID && s.RespondentID == respondentID && s.Version == version {
			if c, ok := m.corrs[s.ID]; ok {
				c.ResubmissionID = resubID
				m.corrs[s.ID] = c
			}
			return
		}
	}
}

func statusAfterDecision(decision string) string {
	switch decision {
	case DecisionNeedsRevision:
		return SubStatusAwaiting
	case DecisionRejected:
		return SubStatusRejected
	default:
		return SubStatusAccepted
	}
}

func stripAnswerKeys(f Form) Form {
	qs := make([]Question, len(f.Questions))
	copy(qs, f.Questions)
	for i := range qs {
		qs[i].CorrectAnswers = nil
	}
	f.Questions = qs
	return f
}

func matchForm(f Form, opts ListOpts) bool {
	if opts.SessionTag != "" && f.SessionTag != opts.SessionTag {
		return false
	}
	if opts.Status != "" && f.Status != opts.Status {
		return false
	}
	if opts.ViewerRole == "trainee" && f.Status != StatusPublished {
		return false
	}
	return true
}

func page[T any](in []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset > len(in) {
		offset = len(in)
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
