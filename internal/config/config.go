// Package config reads service configuration from the environment.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type StoreBackend string

const (
	StoreMemory    StoreBackend = "memory"
	StorePostgres  StoreBackend = "postgres"
	StoreFirestore StoreBackend = "firestore"
)

type AuthProvider string

const (
	AuthClerk    AuthProvider = "clerk"
	AuthFirebase AuthProvider = "firebase"
)

// Config is built once at startup and passed by value.
type Config struct {
	Port string

	StoreBackend StoreBackend
	DatabaseURL  string

	FirebaseProjectID       string
	FirebaseCredentialsJSON []byte // decoded from FCM_SERVICE_ACCOUNT_JSON
	FirebaseCredentialsFile string

	AuthProvider       AuthProvider
	ClerkSecretKey     string
	ClerkWebhookSecret string

	StreakTimezone *time.Location
	WatchInterval  time.Duration

	RateLimitRPS   float64
	RateLimitBurst int
	TrustProxy     bool

	ShareBaseURL  string
	MinAppVersion string

	LogDir string
	Debug  bool

	MetricsUser string
	MetricsPass string
	PprofSecret string
}

// HasFirebaseCredentials reports whether any Firebase credential source is set.
func (c Config) HasFirebaseCredentials() bool {
	return len(c.FirebaseCredentialsJSON) > 0 || c.FirebaseCredentialsFile != ""
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	// A missing .env is normal in production.
	_ = godotenv.Load()

	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	var errs []error

	get := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	cfg := Config{
		Port:                    get("PORT", "3333"),
		StoreBackend:            StoreBackend(strings.ToLower(get("STORE_BACKEND", string(StoreMemory)))),
		DatabaseURL:             get("DATABASE_URL", ""),
		FirebaseProjectID:       get("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsFile: get("FIREBASE_CREDENTIALS_FILE", ""),
		AuthProvider:            AuthProvider(strings.ToLower(get("AUTH_PROVIDER", string(AuthClerk)))),
		ClerkSecretKey:          get("CLERK_SECRET_KEY", ""),
		ClerkWebhookSecret:      get("CLERK_WEBHOOK_SECRET", ""),
		ShareBaseURL:            strings.TrimRight(get("SHARE_BASE_URL", "waterfast://streak"), "/"),
		MinAppVersion:           get("MIN_APP_VERSION", "1.0.0"),
		LogDir:                  get("LOG_DIR", ""),
		MetricsUser:             get("METRICS_USER", ""),
		MetricsPass:             get("METRICS_PASS", ""),
		PprofSecret:             get("PPROF_SECRET", ""),
	}

	if encoded := get("FCM_SERVICE_ACCOUNT_JSON", ""); encoded != "" {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			errs = append(errs, fmt.Errorf("FCM_SERVICE_ACCOUNT_JSON: %w", err))
		}
		cfg.FirebaseCredentialsJSON = decoded
	}

	tz, err := time.LoadLocation(get("STREAK_TIMEZONE", "UTC"))
	if err != nil {
		errs = append(errs, fmt.Errorf("STREAK_TIMEZONE: %w", err))
		tz = time.UTC
	}
	cfg.StreakTimezone = tz

	cfg.WatchInterval, err = time.ParseDuration(get("WATCH_INTERVAL", "1m"))
	if err != nil || cfg.WatchInterval <= 0 {
		errs = append(errs, fmt.Errorf("WATCH_INTERVAL must be a positive duration"))
	}

	cfg.RateLimitRPS, err = strconv.ParseFloat(get("RATE_LIMIT_RPS", "5"), 64)
	if err != nil || cfg.RateLimitRPS <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must be a positive number"))
	}

	cfg.RateLimitBurst, err = strconv.Atoi(get("RATE_LIMIT_BURST", "30"))
	if err != nil || cfg.RateLimitBurst <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST must be a positive integer"))
	}

	cfg.TrustProxy, err = strconv.ParseBool(get("TRUST_PROXY", "false"))
	if err != nil {
		errs = append(errs, fmt.Errorf("TRUST_PROXY must be a boolean"))
	}

	cfg.Debug, _ = strconv.ParseBool(get("DEBUG", "false"))

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return cfg, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c Config) Validate() error {
	var errs []error

	switch c.StoreBackend {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case StoreFirestore:
		if c.FirebaseProjectID == "" {
			errs = append(errs, errors.New("FIREBASE_PROJECT_ID is required for the firestore store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	switch c.AuthProvider {
	case AuthClerk:
		if c.ClerkSecretKey == "" {
			errs = append(errs, errors.New("CLERK_SECRET_KEY is required for clerk auth"))
		}
	case AuthFirebase:
		if c.FirebaseProjectID == "" {
			errs = append(errs, errors.New("FIREBASE_PROJECT_ID is required for firebase auth"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_PROVIDER %q", c.AuthProvider))
	}

	return errors.Join(errs...)
}
