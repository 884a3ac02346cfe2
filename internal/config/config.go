// Package config provides application configuration loaded from environment
// variables (and optional .env files) with defaults and validation. It
// centralizes server timeouts, logging, database selection, rate limiting,
// integration credentials, the relay worker pool, and observability.
package config

import (
	"errors"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/tbourn/wa-intercom-relay/internal/normalize"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path
	URL    string // Postgres DSN
}

// TwilioConfig holds the Twilio webhook credentials.
type TwilioConfig struct {
	AuthToken string
}

// IntercomConfig holds the Intercom REST and webhook credentials.
type IntercomConfig struct {
	AccessToken   string
	WebhookSecret string
	BaseURL       string
	APIVersion    string
	Timeout       time.Duration
}

// RelayConfig sizes the background relay worker pool.
type RelayConfig struct {
	Workers   int
	QueueSize int
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	ShutdownTimeout   time.Duration // graceful drain on SIGTERM
	MaxHeaderBytes    int           // bytes
	MaxBodyBytes      int64         // webhook and API request bodies
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for dashboard API routes

	// Deployment environment tag written on events and logs (prod|dev).
	Env string

	Database DatabaseConfig

	// Rate limiting (dashboard API only)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Integrations
	Twilio   TwilioConfig
	Intercom IntercomConfig

	// PublicBaseURL, when set, is the externally visible origin used to
	// rebuild the URL Twilio signed (e.g. "https://relay.example.com").
	PublicBaseURL string
	// TrustProxyHeaders honors X-Forwarded-Host and X-Forwarded-Proto when
	// PublicBaseURL is unset. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool
	// AdminToken, when set, is required as a bearer token on the dashboard API.
	AdminToken string

	Relay RelayConfig

	// Observability
	OTEL OTELConfig
}

var defaults = map[string]any{
	"port":                        "8080",
	"read_timeout":                15 * time.Second,
	"read_header_timeout":         10 * time.Second,
	"write_timeout":               20 * time.Second,
	"idle_timeout":                60 * time.Second,
	"shutdown_timeout":            15 * time.Second,
	"max_header_bytes":            1 << 20,
	"max_body_bytes":              int64(1 << 20),
	"gin_mode":                    "release",
	"log_level":                   "info",
	"log_pretty":                  false,
	"swagger_enabled":             false,
	"api_base_path":               "/api/v1",
	"app_env":                     "dev",
	"db_driver":                   "sqlite",
	"db_path":                     "relay.db",
	"database_url":                "",
	"rate_rps":                    5.0,
	"rate_burst":                  10,
	"cors_allowed_origins":        "",
	"enable_hsts":                 false,
	"hsts_max_age":                180 * 24 * time.Hour,
	"twilio_auth_token":           "",
	"intercom_access_token":       "",
	"intercom_webhook_secret":     "",
	"intercom_base_url":           "https://api.intercom.io",
	"intercom_api_version":        "2.11",
	"intercom_timeout":            10 * time.Second,
	"public_base_url":             "",
	"trust_proxy_headers":         false,
	"admin_token":                 "",
	"relay_workers":               8,
	"relay_queue_size":            1024,
	"otel_enabled":                false,
	"otel_exporter_otlp_endpoint": "localhost:4317",
	"otel_exporter_otlp_insecure": true,
	"otel_service_name":           "wa-intercom-relay",
	"otel_traces_sampler_arg":     1.0,
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadEnvFiles loads .env then .env.local from dir into the process
// environment. Later files override earlier ones; missing files are skipped.
func LoadEnvFiles(dir string) {
	for _, name := range []string{".env", ".env.local"} {
		_ = godotenv.Overload(filepath.Join(dir, name))
	}
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()
	r := reader{v: v}

	cfg := Config{
		// Server
		Port:              r.str("port"),
		ReadTimeout:       r.dur("read_timeout"),
		ReadHeaderTimeout: r.dur("read_header_timeout"),
		WriteTimeout:      r.dur("write_timeout"),
		IdleTimeout:       r.dur("idle_timeout"),
		ShutdownTimeout:   r.dur("shutdown_timeout"),
		MaxHeaderBytes:    r.int("max_header_bytes"),
		MaxBodyBytes:      int64(r.int("max_body_bytes")),
		GinMode:           strings.ToLower(r.str("gin_mode")),

		// Logging / Docs
		LogLevel:       strings.ToLower(r.str("log_level")),
		LogPretty:      r.bool("log_pretty"),
		SwaggerEnabled: r.bool("swagger_enabled"),
		APIBasePath:    normalizeBasePath(r.str("api_base_path")),

		Env: normalize.Env(r.str("app_env")),

		Database: DatabaseConfig{
			Driver: strings.ToLower(strings.TrimSpace(r.str("db_driver"))),
			Path:   r.str("db_path"),
			URL:    r.str("database_url"),
		},

		// Rate limiting
		RateRPS:   r.float("rate_rps"),
		RateBurst: r.int("rate_burst"),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(r.str("cors_allowed_origins")),
		},
		Security: SecurityConfig{
			EnableHSTS: r.bool("enable_hsts"),
			HSTSMaxAge: r.dur("hsts_max_age"),
		},

		Twilio: TwilioConfig{
			AuthToken: r.str("twilio_auth_token"),
		},
		Intercom: IntercomConfig{
			AccessToken:   r.str("intercom_access_token"),
			WebhookSecret: r.str("intercom_webhook_secret"),
			BaseURL:       strings.TrimRight(r.str("intercom_base_url"), "/"),
			APIVersion:    r.str("intercom_api_version"),
			Timeout:       r.dur("intercom_timeout"),
		},
		PublicBaseURL:     strings.TrimRight(r.str("public_base_url"), "/"),
		TrustProxyHeaders: r.bool("trust_proxy_headers"),
		AdminToken:        r.str("admin_token"),

		Relay: RelayConfig{
			Workers:   r.int("relay_workers"),
			QueueSize: r.int("relay_queue_size"),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     r.bool("otel_enabled"),
			Endpoint:    r.str("otel_exporter_otlp_endpoint"),
			Insecure:    r.bool("otel_exporter_otlp_insecure"),
			ServiceName: r.str("otel_service_name"),
			SampleRatio: r.float("otel_traces_sampler_arg"),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Database.Driver == "postgresql" {
		cfg.Database.Driver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 || cfg.ShutdownTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return cfg, errors.New("MAX_BODY_BYTES must be > 0")
	}
	switch cfg.Database.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.Database.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.Database.URL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.Intercom.Timeout <= 0 {
		return cfg, errors.New("INTERCOM_TIMEOUT must be > 0")
	}
	if cfg.Relay.Workers < 1 {
		return cfg, errors.New("RELAY_WORKERS must be >= 1")
	}
	if cfg.Relay.QueueSize < 1 {
		return cfg, errors.New("RELAY_QUEUE_SIZE must be >= 1")
	}
	if cfg.PublicBaseURL != "" {
		u, err := url.Parse(cfg.PublicBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return cfg, errors.New("PUBLIC_BASE_URL must be an absolute http(s) URL")
		}
	}
	if cfg.Env == "prod" && cfg.PublicBaseURL == "" && !cfg.TrustProxyHeaders {
		return cfg, errors.New("PUBLIC_BASE_URL (or TRUST_PROXY_HEADERS behind a proxy) is required when APP_ENV=prod")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// reader parses viper values, falling back to the registered default when a
// value is present but malformed.
type reader struct {
	v *viper.Viper
}

func (r reader) str(k string) string {
	if s := r.v.GetString(k); s != "" {
		return s
	}
	s, _ := defaults[k].(string)
	return s
}

func (r reader) float(k string) float64 {
	if f, err := strconv.ParseFloat(strings.TrimSpace(r.v.GetString(k)), 64); err == nil {
		return f
	}
	f, _ := defaults[k].(float64)
	return f
}

func (r reader) int(k string) int {
	if i, err := strconv.Atoi(strings.TrimSpace(r.v.GetString(k))); err == nil {
		return i
	}
	switch d := defaults[k].(type) {
	case int:
		return d
	case int64:
		return int(d)
	}
	return 0
}

func (r reader) bool(k string) bool {
	switch strings.ToLower(strings.TrimSpace(r.v.GetString(k))) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	b, _ := defaults[k].(bool)
	return b
}

func (r reader) dur(k string) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(r.v.GetString(k))); err == nil {
		return d
	}
	d, _ := defaults[k].(time.Duration)
	return d
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
