package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	authmw "github.com/traindesk/evalforms/internal/auth/middleware"
	"github.com/traindesk/evalforms/internal/form"
	"github.com/traindesk/evalforms/internal/rbac"
	"github.com/traindesk/evalforms/internal/scoring"
)

// POST /forms/{formID}/submissions — the respondent is the token subject.
// Creates version 1, or the next version when a revision was requested.
func SubmitResponseHandler(store form.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formID := strings.TrimSpace(chi.URLParam(r, "formID"))
		respondent := authmw.SubjectFromContext(r.Context())
		if formID == "" || respondent == "" {
			http.Error(w, "formID and authenticated respondent required", http.StatusBadRequest)
			return
		}
		var req struct {
			Answers []form.AnswerEntry `json:"answers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		sub, err := store.SubmitResponse(r.Context(), formID, respondent, req.Answers)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	}
}

// GET /submissions/{subID} — own submission, or any with submission:view-all.
func GetSubmissionHandler(store form.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := store.GetSubmission(r.Context(), chi.URLParam(r, "subID"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if !canSeeSubmission(r, sub) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		writeJSON(w, http.StatusOK, sub)
	}
}

// GET /forms/{formID}/submissions
func ListFormSubmissionsHandler(store form.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		out, err := store.ListSubmissions(r.Context(), form.SubmissionListOpts{
			FormID:       chi.URLParam(r, "formID"),
			RespondentID: q.Get("respondent"),
			Status:       q.Get("status"),
			Limit:        atoiOr(q.Get("limit"), 0),
			Offset:       atoiOr(q.Get("offset"), 0),
		})
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type reportItem struct {
	scoring.ScoredAnswer
	Prompt    string  `json:"prompt"`
	MaxPoints float64 `json:"max_points"`
}

// GET /submissions/{subID}/report — recomputes the per-question breakdown and
// the aggregated grade. Scores are derived data; the stored snapshot is only
// a convenience and the report always reflects the current engine policy.
func SubmissionReportHandler(store form.Store, engine *scoring.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := store.GetSubmission(r.Context(), chi.URLParam(r, "subID"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if !canSeeSubmission(r, sub) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		f, err := store.GetFormAdmin(r.Context(), sub.FormID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		questions := f.ScoringQuestions()
		scored := engine.ScoreAll(questions, form.AnswerMap(sub.Answers))
		summary := scoring.Aggregate(scored, questions)

		items := make([]reportItem, len(scored))
		for i, sa := range scored {
			items[i] = reportItem{
				ScoredAnswer: sa,
				Prompt:       f.Questions[i].Prompt,
				MaxPoints:    f.Questions[i].Points,
			}
		}
		corrs, err := store.CorrectionsFor(r.Context(), sub.ID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		resp := map[string]any{
			"submission_id": sub.ID,
			"form_id":       f.ID,
			"respondent_id": sub.RespondentID,
			"version":       sub.Version,
			"items":         items,
			"total_points":  summary.TotalPoints,
			"max_points":    summary.MaxPoints,
			"grade_on_20":   summary.DisplayGrade(),
			"label":         summary.Label,
			"passed":        summary.Passed,
		}
		if len(corrs) > 0 {
			resp["correction"] = corrs[0]
			resp["final_grade"] = corrs[0].FinalGrade(summary.DisplayGrade())
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func canSeeSubmission(r *http.Request, sub form.Submission) bool {
	if sub.RespondentID == authmw.SubjectFromContext(r.Context()) {
		return true
	}
	return rbac.NewChecker(nil).Has(rbac.RoleFromContext(r.Context()), "submission:view-all")
}
