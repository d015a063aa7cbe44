package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	api "github.com/traindesk/evalforms/internal/api/http"
	auth "github.com/traindesk/evalforms/internal/auth/middleware"
	"github.com/traindesk/evalforms/internal/form"
	"github.com/traindesk/evalforms/internal/rbac"
	"github.com/traindesk/evalforms/internal/scoring"
)

type testEnv struct {
	router  *chi.Mux
	store   form.Store
	authSvc *auth.AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	engine := scoring.NewEngine()
	store := form.NewInMemoryStore(engine, nil)
	authSvc := auth.NewAuthService("test-secret")

	r := chi.NewRouter()
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.With(rbac.Require("form:create")).Post("/forms", api.SaveFormHandler(store))
		pr.With(rbac.Require("form:view")).Get("/forms", api.ListFormsHandler(store))
		pr.With(rbac.Require("form:view")).Get("/forms/{formID}", api.GetFormHandler(store))
		pr.With(rbac.Require("form:publish")).Post("/forms/{formID}/publish", api.PublishFormHandler(store))
		pr.With(rbac.Require("submission:create")).Post("/forms/{formID}/submissions", api.SubmitResponseHandler(store))
		pr.With(rbac.RequireAny("submission:view-own", "submission:view-all")).Get("/submissions/{subID}", api.GetSubmissionHandler(store))
		pr.With(rbac.RequireAny("submission:view-own", "submission:view-all")).Get("/submissions/{subID}/report", api.SubmissionReportHandler(store, engine))
		pr.With(rbac.Require("submission:correct")).Post("/submissions/{subID}/correction", api.RecordCorrectionHandler(store))
	})
	return &testEnv{router: r, store: store, authSvc: authSvc}
}

func (e *testEnv) do(t *testing.T, method, path, sub, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	tok, err := e.authSvc.IssueJWT(sub, role)
	if err != nil {
		t.Fatalf("issue jwt: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func validForm() form.Form {
	return form.Form{
		Title: "Day 2 — knots",
		Questions: []form.Question{
			{ID: "q1", Type: "multi_choice", Prompt: "Pick A and C",
				Options: []string{"A", "B", "C"}, CorrectAnswers: []string{"A", "C"}, Points: 20},
		},
	}
}

func TestFormEndpointsRBAC(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(t, "POST", "/forms", "trainee-1", "trainee", validForm()); w.Code != http.StatusForbidden {
		t.Fatalf("trainee create form: %d", w.Code)
	}
	if w := env.do(t, "GET", "/forms", "trainee-1", "trainee", nil); w.Code != http.StatusOK {
		t.Fatalf("trainee list forms: %d", w.Code)
	}

	// a draft's id must not let a trainee peek at it
	w := env.do(t, "POST", "/forms", "trainer-1", "trainer", validForm())
	if w.Code != http.StatusOK {
		t.Fatalf("save draft: %d", w.Code)
	}
	var draft form.Form
	_ = json.Unmarshal(w.Body.Bytes(), &draft)
	if w := env.do(t, "GET", "/forms/"+draft.ID, "trainee-1", "trainee", nil); w.Code != http.StatusNotFound {
		t.Fatalf("trainee get draft: %d, want 404", w.Code)
	}
	if w := env.do(t, "GET", "/forms/"+draft.ID, "trainer-1", "trainer", nil); w.Code != http.StatusOK {
		t.Fatalf("trainer get draft: %d", w.Code)
	}

	req := httptest.NewRequest("GET", "/forms", nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", w.Code)
	}
}

func TestPublishGateOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	bad := validForm()
	bad.Questions[0].Points = 15
	w := env.do(t, "POST", "/forms", "trainer-1", "trainer", bad)
	if w.Code != http.StatusOK {
		t.Fatalf("save draft: %d %s", w.Code, w.Body.String())
	}
	var saved form.Form
	_ = json.Unmarshal(w.Body.Bytes(), &saved)

	w = env.do(t, "POST", "/forms/"+saved.ID+"/publish", "trainer-1", "trainer", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("publish invalid form: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Error         string `json:"error"`
		QuestionIndex int    `json:"question_index"`
		Reason        string `json:"reason"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Reason != scoring.ReasonPointsBudget || resp.QuestionIndex != -1 {
		t.Fatalf("gate payload: %+v", resp)
	}
}

func TestSubmitCorrectReportFlow(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/forms", "trainer-1", "trainer", validForm())
	if w.Code != http.StatusOK {
		t.Fatalf("save: %d", w.Code)
	}
	var f form.Form
	_ = json.Unmarshal(w.Body.Bytes(), &f)
	if w := env.do(t, "POST", "/forms/"+f.ID+"/publish", "trainer-1", "trainer", nil); w.Code != http.StatusOK {
		t.Fatalf("publish: %d %s", w.Code, w.Body.String())
	}

	// trainee must not see the answer key
	w = env.do(t, "GET", "/forms/"+f.ID, "trainee-1", "trainee", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get form: %d", w.Code)
	}
	var visible form.Form
	_ = json.Unmarshal(w.Body.Bytes(), &visible)
	if visible.Questions[0].CorrectAnswers != nil {
		t.Fatal("answer key leaked to trainee")
	}

	// extra selection scores zero
	w = env.do(t, "POST", "/forms/"+f.ID+"/submissions", "trainee-1", "trainee", map[string]any{
		"answers": []form.AnswerEntry{{QuestionID: "q1", Values: []string{"A", "C", "B"}}},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}
	var sub form.Submission
	_ = json.Unmarshal(w.Body.Bytes(), &sub)
	if sub.Score != 0 || sub.GradeOn20 != 0 {
		t.Fatalf("extra selection must score zero: %+v", sub)
	}

	// another trainee cannot read it, the owner and the trainer can
	if w := env.do(t, "GET", "/submissions/"+sub.ID, "trainee-2", "trainee", nil); w.Code != http.StatusForbidden {
		t.Fatalf("foreign trainee read: %d", w.Code)
	}
	if w := env.do(t, "GET", "/submissions/"+sub.ID, "trainee-1", "trainee", nil); w.Code != http.StatusOK {
		t.Fatalf("owner read: %d", w.Code)
	}
	if w := env.do(t, "GET", "/submissions/"+sub.ID, "trainer-1", "trainer", nil); w.Code != http.StatusOK {
		t.Fatalf("trainer read: %d", w.Code)
	}

	// correction with manual override
	over := 14.0
	w = env.do(t, "POST", "/submissions/"+sub.ID+"/correction", "trainer-1", "trainer",
		form.CorrectionInput{Decision: form.DecisionAccepted, Comment: "partially right on paper", OverrideScore: &over})
	if w.Code != http.StatusCreated {
		t.Fatalf("correct: %d %s", w.Code, w.Body.String())
	}
	var c form.Correction
	_ = json.Unmarshal(w.Body.Bytes(), &c)
	if c.GradedBy != "trainer-1" || c.OverrideScore == nil || *c.OverrideScore != 14 {
		t.Fatalf("correction: %+v", c)
	}

	// report carries the breakdown, the aggregate and the final grade
	w = env.do(t, "GET", "/submissions/"+sub.ID+"/report", "trainee-1", "trainee", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("report: %d", w.Code)
	}
	var report struct {
		Items      []scoring.ScoredAnswer `json:"items"`
		MaxPoints  float64                `json:"max_points"`
		GradeOn20  float64                `json:"grade_on_20"`
		Label      string                 `json:"label"`
		FinalGrade float64                `json:"final_grade"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if len(report.Items) != 1 || report.Items[0].IsCorrect {
		t.Fatalf("items: %+v", report.Items)
	}
	if report.MaxPoints != 20 || report.GradeOn20 != 0 {
		t.Fatalf("aggregate: %+v", report)
	}
	if report.FinalGrade != 14 {
		t.Fatalf("final grade=%v, want override 14", report.FinalGrade)
	}

	// decided submissions cannot be corrected twice
	w = env.do(t, "POST", "/submissions/"+sub.ID+"/correction", "trainer-1", "trainer",
		form.CorrectionInput{Decision: form.DecisionRejected})
	if w.Code != http.StatusConflict {
		t.Fatalf("second decision: %d", w.Code)
	}
}
