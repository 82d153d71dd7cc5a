package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr        string
	CORSOrigin      string
	MaxRequestBytes int64

	Log  LogConfig
	OTel OTelConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool

	Webhook       WebhookConfig
	Redis         RedisConfig
	MetricsExport MetricsExportConfig
	Scheduler     SchedulerConfig
}

type LogConfig struct {
	Level  string
	Format string
}

// OTelConfig drives both trace and metric OTLP exporters.
type OTelConfig struct {
	Enabled       bool
	Endpoint      string
	Protocol      string
	SamplingRatio float64
}

// WebhookConfig controls outbound escalation delivery.
type WebhookConfig struct {
	DefaultURL string
	Timeout    time.Duration
}

// RedisConfig is optional; an empty Addr disables every Redis-backed feature.
type RedisConfig struct {
	Addr             string
	Password         string
	DB               int
	SweepLockTTL     time.Duration
	BackplaneChannel string
	ManualSweepRate  float64
	ManualSweepBurst int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type MetricsExportConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
}

type SchedulerConfig struct {
	EnabledJobs []string
	// Intervals overrides per-job tick intervals, e.g. "sla_sweep=30s,dashboard_push=15s".
	Intervals map[string]time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:         getenv("APP_SERVICE", "orderdesk"),
		AppVersion:      getenv("APP_VERSION", "0.1.0"),
		Environment:     getenv("ENVIRONMENT", "development"),
		HTTPAddr:        getenv("HTTP_ADDR", ":"+getenv("APP_PORT", "3001")),
		CORSOrigin:      strings.TrimSpace(getenv("FRONTEND_URL", "http://localhost:3000")),
		MaxRequestBytes: getenvInt64("APP_MAX_REQUEST_BODY_BYTES", 10<<20),

		Log: LogConfig{
			Level:  strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			Format: strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		},
		OTel: OTelConfig{
			Enabled:       getenvBool("OTEL_ENABLED", true),
			Endpoint:      strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317"))),
			Protocol:      otlpProtocol(),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "orderdesk"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", false),

		Webhook: WebhookConfig{
			DefaultURL: strings.TrimSpace(getenv("MS_TEAMS_WEBHOOK_URL", "")),
			Timeout:    time.Duration(getenvInt64("WEBHOOK_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Redis: RedisConfig{
			Addr:             strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password:         strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:               int(getenvInt64("REDIS_DB", 0)),
			SweepLockTTL:     time.Duration(getenvInt64("REDIS_SWEEP_LOCK_TTL_SECONDS", 50)) * time.Second,
			BackplaneChannel: getenv("REDIS_REALTIME_CHANNEL", "orderdesk:realtime"),
			ManualSweepRate:  getenvFloat("MANUAL_SWEEP_RATE_PER_SECOND", 0.2),
			ManualSweepBurst: int(getenvInt64("MANUAL_SWEEP_BURST", 3)),
		},
		MetricsExport: MetricsExportConfig{
			Enabled:   getenvBool("METRICS_EXPORT_ENABLED", false),
			Exporter:  strings.ToLower(getenv("METRICS_EXPORT_EXPORTER", "")),
			Endpoint:  strings.TrimSpace(getenv("METRICS_EXPORT_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_EXPORT_AUTH_TOKEN", "")),
		},
		Scheduler: SchedulerConfig{
			EnabledJobs: parseList(getenv("SCHEDULER_ENABLED_JOBS", "")),
			Intervals:   parseDurations(getenv("SCHEDULER_INTERVALS", "")),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

// Verbose reports whether logs should carry debug detail: an explicit debug
// level or a non-production environment.
func (c Config) Verbose() bool {
	if c.Log.Level == "debug" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

// otlpProtocol prefers the trace-specific override the OTel SDKs honour.
func otlpProtocol() string {
	p := getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))
	return strings.ToLower(strings.TrimSpace(p))
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func parseDurations(raw string) map[string]time.Duration {
	out := map[string]time.Duration{}
	for _, item := range parseList(raw) {
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil || d <= 0 {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(key))] = d
	}
	return out
}
