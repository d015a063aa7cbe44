package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/traindesk/evalforms/internal/form"
	"github.com/traindesk/evalforms/internal/notify"
)

// GET /respondents/{userID}/results — trainee progress: latest grade per
// form, with correction overrides applied. Routed behind RequireOwnerOr so a
// trainee only reads their own row.
func RespondentResultsHandler(store form.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(chi.URLParam(r, "userID"))
		if userID == "" {
			http.Error(w, "userID required", http.StatusBadRequest)
			return
		}
		out, err := store.ResultsForRespondent(r.Context(), userID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /events — recent notification events (publish, submission, correction).
func RecentEventsHandler(repo *notify.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := repo.Recent(r.Context(), atoiOr(r.URL.Query().Get("limit"), 50))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}
