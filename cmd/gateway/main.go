package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/traindesk/evalforms/internal/api/http"
	auth "github.com/traindesk/evalforms/internal/auth/middleware"
	"github.com/traindesk/evalforms/internal/config"
	"github.com/traindesk/evalforms/internal/db"
	"github.com/traindesk/evalforms/internal/form"
	"github.com/traindesk/evalforms/internal/notify"
	"github.com/traindesk/evalforms/internal/rbac"
	"github.com/traindesk/evalforms/internal/scoring"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	if err := bootstrapAdmin(ctx, dbh, cfg); err != nil {
		log.Fatalf("admin bootstrap: %v", err)
	}

	// --- Scoring engine (match policy from config) ---
	engine := scoring.NewEngine(
		scoring.WithTextMatcher(scoring.MatcherFor(cfg.TextMatch, cfg.TextMatchMaxEdit)),
		scoring.WithTolerance(scoring.Tolerance{Abs: cfg.NumericAbsTol, Rel: cfg.NumericRelTol}),
	)

	events := notify.NewEventRepo(dbh)
	store := form.NewSQLStore(dbh, cfg.DBDriver, engine, events)

	// --- Auth ---
	authSvc := auth.NewAuthService(cfg.AuthSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))

	// Protected API (JWT → subject+role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		// Form authoring and lifecycle
		pr.With(rbac.Require("form:create")).
			Post("/forms", api.SaveFormHandler(store))
		pr.With(rbac.Require("form:view")).
			Get("/forms", api.ListFormsHandler(store))
		pr.With(rbac.Require("form:view")).
			Get("/forms/{formID}", api.GetFormHandler(store))
		pr.With(rbac.Require("form:publish")).
			Post("/forms/{formID}/publish", api.PublishFormHandler(store))
		pr.With(rbac.Require("form:publish")).
			Post("/forms/{formID}/unpublish", api.UnpublishFormHandler(store))
		pr.With(rbac.Require("form:force_open")).
			Post("/forms/{formID}/force-open", api.ForceOpenFormHandler(store))
		pr.With(rbac.Require("form:delete")).
			Delete("/forms/{formID}", api.DeleteFormHandler(store))

		// Trainee flow
		pr.With(rbac.Require("submission:create")).
			Post("/forms/{formID}/submissions", api.SubmitResponseHandler(store))
		pr.With(rbac.RequireAny("submission:view-own", "submission:view-all")).
			Get("/submissions/{subID}", api.GetSubmissionHandler(store))
		pr.With(rbac.RequireAny("submission:view-own", "submission:view-all")).
			Get("/submissions/{subID}/report", api.SubmissionReportHandler(store, engine))
		pr.With(rbac.Require("submission:view-all")).
			Get("/forms/{formID}/submissions", api.ListFormSubmissionsHandler(store))

		// Correction workflow
		pr.With(rbac.Require("submission:correct")).
			Post("/submissions/{subID}/correction", api.RecordCorrectionHandler(store))
		pr.With(rbac.RequireAny("submission:view-own", "submission:view-all")).
			Get("/submissions/{subID}/corrections", api.ListCorrectionsHandler(store))

		// Progress
		pr.With(rbac.RequireOwnerOr("results:view-all", ownsResults)).
			Get("/respondents/{userID}/results", api.RespondentResultsHandler(store))

		// Roster
		pr.With(rbac.Require("users:bulk_upsert")).
			Post("/users/bulk", api.BulkUpsertUsersHandler(dbh))
		pr.With(rbac.Require("users:list")).
			Get("/users", api.ListUsersHandler(dbh))

		// Notifications feed
		pr.With(rbac.Require("events:view")).
			Get("/events", api.RecentEventsHandler(events))
	})

	log.Printf("evalforms gateway listening on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Fatal(err)
	}
}

func ownsResults(r *http.Request) bool {
	return chi.URLParam(r, "userID") == auth.SubjectFromContext(r.Context())
}

// bootstrapAdmin upserts the configured admin account so a fresh deployment
// is reachable before any roster import.
func bootstrapAdmin(ctx context.Context, dbh *sql.DB, cfg config.Config) error {
	if cfg.AdminUser == "" || cfg.AdminPassHash == "" {
		return nil
	}
	var id string
	err := dbh.QueryRowContext(ctx, `SELECT id FROM users WHERE username=$1`, cfg.AdminUser).Scan(&id)
	switch {
	case err == nil:
		_, err = dbh.ExecContext(ctx, `UPDATE users SET role=$1, pass_hash=$2 WHERE id=$3`,
			rbac.RoleAdmin, cfg.AdminPassHash, id)
		return err
	case errors.Is(err, sql.ErrNoRows):
		_, err = dbh.ExecContext(ctx,
			`INSERT INTO users (id, username, pass_hash, role, created_at) VALUES ($1,$2,$3,$4,$5)`,
			cfg.AdminUser, cfg.AdminUser, cfg.AdminPassHash, rbac.RoleAdmin, time.Now().Unix())
		return err
	default:
		return err
	}
}
