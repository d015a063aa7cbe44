package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/traindesk/evalforms/internal/form"
	"github.com/traindesk/evalforms/internal/scoring"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeStoreError maps domain errors onto HTTP statuses. Publish-gate
// failures keep their structured shape so the form editor can pinpoint the
// offending question.
func writeStoreError(w http.ResponseWriter, err error) {
	var verr *scoring.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":          "form_invalid",
			"question_index": verr.QuestionIndex,
			"reason":         verr.Reason,
		})
		return
	}
	switch {
	case errors.Is(err, form.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, form.ErrInvalidDecision), errors.Is(err, form.ErrInvalidOverride):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, form.ErrNotEditable),
		errors.Is(err, form.ErrAlreadyPublished),
		errors.Is(err, form.ErrNotPublished),
		errors.Is(err, form.ErrFormClosed),
		errors.Is(err, form.ErrPendingDecision),
		errors.Is(err, form.ErrSubmissionClosed),
		errors.Is(err, form.ErrAlreadyCorrected):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
