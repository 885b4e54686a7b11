package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env      string
	HTTPPort string

	DatabaseURL string

	JWTSecret   string
	JWTValidity time.Duration

	CookieName   string
	CookiePath   string
	CookieDomain string
	CookieSecure bool

	RoutePrefix string
	PublicPaths []string

	OTPVerifyTTL time.Duration
	OTPResetTTL  time.Duration

	PasswordMinLength   int
	AuthMaxFailedLogins int
	AuthLockoutCooldown time.Duration

	CORSAllowedOrigins  []string
	AuthRateLimitPerMin int
	APIRateLimitPerMin  int

	RedisURL     string
	RedisEnabled bool

	BootstrapAdminEmail    string
	ReadinessProbeTimeout  time.Duration
	ServerStartGracePeriod time.Duration

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsExportInterval time.Duration
	OTELTraceSamplingRatio    float64
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELLogLevel              string
}

// defaultPublicPaths are reachable without a valid token. Matching is by
// exact path or segment prefix after the route prefix is stripped.
var defaultPublicPaths = []string{
	"/login",
	"/register",
	"/send-otp",
	"/verify-otp",
	"/send-reset-otp",
	"/reset-password",
	"/logout",
	"/health",
}

func Load() (*Config, error) {
	env := getEnv("APP_ENV", "development")

	cfg := &Config{
		Env:         env,
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		CookieName:   getEnv("AUTH_COOKIE_NAME", "jwt"),
		CookiePath:   getEnv("AUTH_COOKIE_PATH", "/"),
		CookieDomain: os.Getenv("AUTH_COOKIE_DOMAIN"),
		CookieSecure: getEnvBool("AUTH_COOKIE_SECURE", true),

		RoutePrefix: strings.TrimRight(getEnv("ROUTE_PREFIX", ""), "/"),
		PublicPaths: publicPathsFromEnv(),

		PasswordMinLength:   getEnvInt("PASSWORD_MIN_LENGTH", 8),
		AuthMaxFailedLogins: getEnvInt("AUTH_MAX_FAILED_LOGINS", 5),

		CORSAllowedOrigins:  splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		AuthRateLimitPerMin: getEnvInt("AUTH_RATE_LIMIT_PER_MIN", 30),
		APIRateLimitPerMin:  getEnvInt("API_RATE_LIMIT_PER_MIN", 120),

		RedisURL:     os.Getenv("REDIS_URL"),
		RedisEnabled: getEnvBool("REDIS_ENABLED", false),

		BootstrapAdminEmail: strings.TrimSpace(strings.ToLower(os.Getenv("BOOTSTRAP_ADMIN_EMAIL"))),

		OTELServiceName:          getEnv("OTEL_SERVICE_NAME", "identity-service"),
		OTELEnvironment:          getEnv("OTEL_ENVIRONMENT", env),
		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELTraceSamplingRatio:   getEnvFloat("OTEL_TRACE_SAMPLING_RATIO", 1.0),
		OTELMetricsEnabled:       getEnvBool("OTEL_METRICS_ENABLED", true),
		OTELTracingEnabled:       getEnvBool("OTEL_TRACING_ENABLED", true),
		OTELLogsEnabled:          getEnvBool("OTEL_LOGS_ENABLED", true),
		OTELLogLevel:             strings.ToLower(getEnv("OTEL_LOG_LEVEL", "info")),
	}

	validity, err := time.ParseDuration(getEnv("JWT_VALIDITY", "10h"))
	if err != nil {
		return nil, fmt.Errorf("parse JWT_VALIDITY: %w", err)
	}
	cfg.JWTValidity = validity

	verifyTTL, err := time.ParseDuration(getEnv("OTP_VERIFY_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("parse OTP_VERIFY_TTL: %w", err)
	}
	cfg.OTPVerifyTTL = verifyTTL

	resetTTL, err := time.ParseDuration(getEnv("OTP_RESET_TTL", "15m"))
	if err != nil {
		return nil, fmt.Errorf("parse OTP_RESET_TTL: %w", err)
	}
	cfg.OTPResetTTL = resetTTL

	cooldown, err := time.ParseDuration(getEnv("AUTH_LOCKOUT_COOLDOWN", "15m"))
	if err != nil {
		return nil, fmt.Errorf("parse AUTH_LOCKOUT_COOLDOWN: %w", err)
	}
	cfg.AuthLockoutCooldown = cooldown

	probeTimeout, err := time.ParseDuration(getEnv("READINESS_PROBE_TIMEOUT", "2s"))
	if err != nil {
		return nil, fmt.Errorf("parse READINESS_PROBE_TIMEOUT: %w", err)
	}
	cfg.ReadinessProbeTimeout = probeTimeout

	grace, err := time.ParseDuration(getEnv("SERVER_START_GRACE_PERIOD", "0s"))
	if err != nil {
		return nil, fmt.Errorf("parse SERVER_START_GRACE_PERIOD: %w", err)
	}
	cfg.ServerStartGracePeriod = grace

	metricsInterval, err := time.ParseDuration(getEnv("OTEL_METRICS_EXPORT_INTERVAL", "10s"))
	if err != nil {
		return nil, fmt.Errorf("parse OTEL_METRICS_EXPORT_INTERVAL: %w", err)
	}
	cfg.OTELMetricsExportInterval = metricsInterval

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	// A usable secret is either >=32 raw chars or base64 of >=32 bytes; the
	// encoded form of 32 bytes is 44 chars, so anything shorter than 32 chars
	// cannot derive a valid signing key either way.
	if len(c.JWTSecret) < 32 {
		errs = append(errs, "JWT_SECRET must be at least 32 chars, raw or base64-encoded")
	}
	if c.JWTValidity <= 0 || c.JWTValidity > 7*24*time.Hour {
		errs = append(errs, "JWT_VALIDITY must be between 1s and 7d")
	}
	if c.CookieName == "" {
		errs = append(errs, "AUTH_COOKIE_NAME must not be empty")
	}
	if c.RoutePrefix != "" && !strings.HasPrefix(c.RoutePrefix, "/") {
		errs = append(errs, "ROUTE_PREFIX must start with /")
	}
	if c.OTPVerifyTTL <= 0 {
		errs = append(errs, "OTP_VERIFY_TTL must be > 0")
	}
	if c.OTPResetTTL <= 0 {
		errs = append(errs, "OTP_RESET_TTL must be > 0")
	}
	if c.PasswordMinLength < 8 {
		errs = append(errs, "PASSWORD_MIN_LENGTH must be at least 8")
	}
	if c.AuthMaxFailedLogins <= 0 {
		errs = append(errs, "AUTH_MAX_FAILED_LOGINS must be > 0")
	}
	if c.AuthLockoutCooldown <= 0 {
		errs = append(errs, "AUTH_LOCKOUT_COOLDOWN must be > 0")
	}
	if c.AuthRateLimitPerMin <= 0 {
		errs = append(errs, "AUTH_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.APIRateLimitPerMin <= 0 {
		errs = append(errs, "API_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.RedisEnabled && c.RedisURL == "" {
		errs = append(errs, "REDIS_URL is required when REDIS_ENABLED=true")
	}
	if (c.OTELMetricsEnabled || c.OTELTracingEnabled || c.OTELLogsEnabled) && c.OTELExporterOTLPEndpoint == "" {
		errs = append(errs, "OTEL_EXPORTER_OTLP_ENDPOINT is required when OTel is enabled")
	}
	if c.OTELTraceSamplingRatio < 0 || c.OTELTraceSamplingRatio > 1 {
		errs = append(errs, "OTEL_TRACE_SAMPLING_RATIO must be between 0 and 1")
	}
	if c.OTELMetricsExportInterval <= 0 {
		errs = append(errs, "OTEL_METRICS_EXPORT_INTERVAL must be > 0")
	}
	if !isValidLogLevel(c.OTELLogLevel) {
		errs = append(errs, "OTEL_LOG_LEVEL must be one of debug, info, warn, error")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func publicPathsFromEnv() []string {
	raw := os.Getenv("AUTH_PUBLIC_PATHS")
	if raw == "" {
		out := make([]string, len(defaultPublicPaths))
		copy(out, defaultPublicPaths)
		return out
	}
	return splitCSV(raw)
}

func isValidLogLevel(v string) bool {
	switch strings.ToLower(v) {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trim := strings.TrimSpace(p)
		if trim != "" {
			out = append(out, trim)
		}
	}
	return out
}
