package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr  string
	PublicURL string

	DBDriver string
	DBDSN    string

	AuthSecret string

	// Bootstrap admin, upserted at startup when set.
	AdminUser     string
	AdminPassHash string // bcrypt

	CORSOrigins []string

	// Scoring policy (fuzzy thresholds are deployment configuration).
	TextMatch        string // exact|substring|fuzzy
	TextMatchMaxEdit int
	NumericAbsTol    float64
	NumericRelTol    float64
}

func FromEnv() Config {
	_ = godotenv.Load() // optional .env; real env wins

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:  addr,
		PublicURL: os.Getenv("PUBLIC_URL"),

		DBDriver: envOr("DB_DRIVER", "sqlite"),
		DBDSN:    envOr("DB_DSN", ""),

		AuthSecret: envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),

		AdminUser:     envOr("ADMIN_USER", "admin"),
		AdminPassHash: os.Getenv("ADMIN_PASS_HASH"),

		CORSOrigins: csvOr("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173"),

		TextMatch:        envOr("TEXT_MATCH", "exact"),
		TextMatchMaxEdit: envInt("TEXT_MATCH_MAX_EDIT", 1),
		NumericAbsTol:    envFloat("NUMERIC_ABS_TOL", 0),
		NumericRelTol:    envFloat("NUMERIC_REL_TOL", 0),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envInt(k string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return v
	}
	return def
}

func envFloat(k string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(k), 64); err == nil {
		return v
	}
	return def
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
