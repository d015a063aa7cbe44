package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	authmw "github.com/traindesk/evalforms/internal/auth/middleware"
	"github.com/traindesk/evalforms/internal/form"
)

// POST /submissions/{subID}/correction — records the single decision for a
// submission version. needs_revision re-opens the chain for one resubmission.
func RecordCorrectionHandler(store form.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subID := strings.TrimSpace(chi.URLParam(r, "subID"))
		if subID == "" {
			http.Error(w, "subID required", http.StatusBadRequest)
			return
		}
		var in form.CorrectionInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		gradedBy := authmw.SubjectFromContext(r.Context())
		c, err := store.Correct(r.Context(), subID, in, gradedBy)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

// GET /submissions/{subID}/corrections — audit view; includes the
// resubmission reference once the follow-up version exists.
func ListCorrectionsHandler(store form.Store) http.HandlerFunc {
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
		out, err := store.CorrectionsFor(r.Context(), sub.ID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}
