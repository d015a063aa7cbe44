package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/traindesk/evalforms/internal/form"
	"github.com/traindesk/evalforms/internal/rbac"
)

// POST /forms — create or update a draft. The body carries the full form
// definition; the id may be omitted on create.
func SaveFormHandler(store form.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var f form.Form
		if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		saved, err := store.PutForm(r.Context(), f)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

// GET /forms
func ListFormsHandler(store form.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		out, err := store.ListForms(r.Context(), form.ListOpts{
			SessionTag: q.Get("session"),
			Status:     q.Get("status"),
			ViewerRole: rbac.RoleFromContext(r.Context()),
			Limit:      atoiOr(q.Get("limit"), 0),
			Offset:     atoiOr(q.Get("offset"), 0),
		})
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /forms/{formID} — trainers see the full definition, trainees get the
// respondent-safe copy with correct answers stripped.
func GetFormHandler(store form.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "formID"))
		if id == "" {
			http.Error(w, "formID required", http.StatusBadRequest)
			return
		}
		var f form.Form
		var err error
		if rbac.RoleFromContext(r.Context()) == rbac.RoleTrainee {
			f, err = store.GetForm(r.Context(), id)
		} else {
			f, err = store.GetFormAdmin(r.Context(), id)
		}
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}

// POST /forms/{formID}/publish — runs the 20-point publish gate.
func PublishFormHandler(store form.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := store.Publish(r.Context(), chi.URLParam(r, "formID"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}

// POST /forms/{formID}/unpublish
func UnpublishFormHandler(store form.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := store.Unpublish(r.Context(), chi.URLParam(r, "formID"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}

// POST /forms/{formID}/force-open — administrative override: open the window
// now, optionally moving the deadline.
func ForceOpenFormHandler(store form.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ClosesAt int64 `json:"closes_at,omitempty"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "bad json", http.StatusBadRequest)
				return
			}
		}
		f, err := store.ForceOpen(r.Context(), chi.URLParam(r, "formID"), req.ClosesAt)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}

// DELETE /forms/{formID}
func DeleteFormHandler(store form.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteForm(r.Context(), chi.URLParam(r, "formID")); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func atoiOr(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}
