package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultInferenceURL is used when no inference endpoint is configured.
	DefaultInferenceURL = "http://localhost:8000"
	// DefaultMaxImageBytes is the largest photo a session accepts (15 MiB).
	DefaultMaxImageBytes int64 = 15 * 1024 * 1024
	// DefaultAnalyzeTimeout bounds a single analysis request.
	DefaultAnalyzeTimeout = 120 * time.Second
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Inference InferenceConfig
	Reports   ReportsConfig
	Cache     CacheConfig
	Database  DatabaseConfig
	Logging   LoggingConfig
	Auth      AuthConfig
	FaceCheck FaceCheckConfig
}

// ServerConfig holds the session HTTP API configuration
type ServerConfig struct {
	HTTPAddr   string
	SessionTTL time.Duration
	// TokenTTL is the session token lifetime. It is never shorter than SessionTTL.
	TokenTTL         time.Duration
	SessionRateLimit time.Duration
	CORSOrigin       string
	// TrustedProxies lists proxy addresses or CIDRs whose X-Forwarded-For is believed.
	TrustedProxies []string
}

// InferenceConfig selects and bounds the external inference service
type InferenceConfig struct {
	BaseURL        string
	AnalyzeTimeout time.Duration
	HealthTimeout  time.Duration
	MaxImageBytes  int64
	UserAgent      string
}

// ReportsConfig holds report export settings
type ReportsConfig struct {
	Backend string // "memory", "redis" or "database"
	TTL     time.Duration
	Dir     string
	// EncryptionKey must be empty or exactly 32 bytes (AES-256).
	EncryptionKey []byte
}

// CacheConfig holds cache configuration for the upstream health probe
type CacheConfig struct {
	Backend   string // "memory" or "redis"
	TTL       time.Duration
	RedisAddr string
}

// DatabaseConfig holds the SQL report store configuration
type DatabaseConfig struct {
	Driver   string // "postgres" or "sqlite"
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	Path     string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// AuthConfig holds session token configuration
type AuthConfig struct {
	TokenSecret   string
	TokenIssuer   string
	TokenAudience string
}

// FaceCheckConfig holds the optional Rekognition face pre-check settings.
type FaceCheckConfig struct {
	Enabled       bool
	AWSRegion     string
	MinConfidence float64
	MinAreaRatio  float64
	Timeout       time.Duration
}

// Load parses command-line flags and environment variables to build configuration
func Load() *Config {
	return load(flag.CommandLine, os.Args[1:])
}

// LoadFromEnv builds configuration from defaults and environment variables only,
// leaving the process flag set untouched.
func LoadFromEnv() *Config {
	return load(flag.NewFlagSet("env", flag.ContinueOnError), nil)
}

func load(fs *flag.FlagSet, args []string) *Config {
	cfg := &Config{}

	// Define flags with defaults
	httpAddr := fs.String("http", ":8080", "HTTP server address")
	apiURL := fs.String("api-url", DefaultInferenceURL, "Base URL of the inference service")
	analyzeTimeout := fs.Duration("analyze-timeout", DefaultAnalyzeTimeout, "Upper bound for one analysis request")
	cacheBackend := fs.String("cache-backend", "memory", "Cache backend: memory or redis")
	redisAddr := fs.String("redis-addr", "localhost:6379", "Redis server address")
	reportBackend := fs.String("report-backend", "memory", "Report store: memory, redis or database")
	logLevel := fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	dbDriver := fs.String("db-driver", "sqlite", "Report database driver: postgres or sqlite")
	dbHost := fs.String("db-host", "localhost", "PostgreSQL host")
	dbPort := fs.Int("db-port", 5432, "PostgreSQL port")
	dbUser := fs.String("db-user", "postgres", "PostgreSQL user")
	dbPassword := fs.String("db-password", "postgres", "PostgreSQL password")
	dbName := fs.String("db-name", "skinlens", "PostgreSQL database name")
	dbSSLMode := fs.String("db-sslmode", "disable", "PostgreSQL SSL mode")
	dbPath := fs.String("db-path", "skinlens.db", "SQLite database file")

	_ = fs.Parse(args)

	// Apply environment variable overrides
	applyEnvOverrides(httpAddr, apiURL, analyzeTimeout, cacheBackend, redisAddr, reportBackend, logLevel, dbDriver, dbHost, dbPort, dbUser, dbPassword, dbName, dbSSLMode, dbPath)

	cfg.Server = loadServerConfig(*httpAddr)
	cfg.Inference = loadInferenceConfig(*apiURL, *analyzeTimeout)
	cfg.Reports = loadReportsConfig(*reportBackend)

	cfg.Cache = CacheConfig{
		Backend:   *cacheBackend,
		TTL:       durationFromEnv("HEALTH_CACHE_TTL", 30*time.Second),
		RedisAddr: *redisAddr,
	}

	cfg.Database = DatabaseConfig{
		Driver:   strings.ToLower(strings.TrimSpace(*dbDriver)),
		Host:     *dbHost,
		Port:     *dbPort,
		User:     *dbUser,
		Password: *dbPassword,
		Database: *dbName,
		SSLMode:  *dbSSLMode,
		Path:     *dbPath,
	}

	cfg.Logging = LoggingConfig{
		Level:  *logLevel,
		Format: getEnvOrDefault("LOG_FORMAT", "text"),
	}

	cfg.Auth = loadAuthConfig()
	cfg.FaceCheck = loadFaceCheckConfig()

	return cfg
}

func loadServerConfig(httpAddr string) ServerConfig {
	cfg := ServerConfig{
		HTTPAddr:         httpAddr,
		SessionTTL:       durationFromEnv("SESSION_TTL", 30*time.Minute),
		TokenTTL:         durationFromEnv("SESSION_TOKEN_TTL", 12*time.Hour),
		SessionRateLimit: durationFromEnv("SESSION_RATE_LIMIT", time.Second),
		CORSOrigin:       getEnvOrDefault("CORS_ORIGIN", "*"),
		TrustedProxies:   listFromEnv("TRUSTED_PROXIES"),
	}
	if cfg.TokenTTL < cfg.SessionTTL {
		cfg.TokenTTL = cfg.SessionTTL
	}
	return cfg
}

func loadInferenceConfig(baseURL string, analyzeTimeout time.Duration) InferenceConfig {
	if analyzeTimeout <= 0 {
		analyzeTimeout = DefaultAnalyzeTimeout
	}

	maxBytes := DefaultMaxImageBytes
	if v := os.Getenv("MAX_IMAGE_BYTES"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
			maxBytes = parsed
		}
	}

	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultInferenceURL
	}

	return InferenceConfig{
		BaseURL:        baseURL,
		AnalyzeTimeout: analyzeTimeout,
		HealthTimeout:  durationFromEnv("INFERENCE_HEALTH_TIMEOUT", 10*time.Second),
		MaxImageBytes:  maxBytes,
		UserAgent:      getEnvOrDefault("INFERENCE_USER_AGENT", "skinlens/1.0"),
	}
}

// loadReportsConfig reads REPORT_ENCRYPTION_KEY, which must be exactly 32 bytes to take effect.
func loadReportsConfig(backend string) ReportsConfig {
	var key []byte
	if v := os.Getenv("REPORT_ENCRYPTION_KEY"); len(v) == 32 {
		key = []byte(v)
	}

	return ReportsConfig{
		Backend:       strings.ToLower(strings.TrimSpace(backend)),
		TTL:           durationFromEnv("REPORT_TTL", 15*time.Minute),
		Dir:           getEnvOrDefault("REPORT_DIR", "."),
		EncryptionKey: key,
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		TokenSecret:   getEnvOrDefault("SESSION_TOKEN_SECRET", "change-me-in-production"),
		TokenIssuer:   getEnvOrDefault("SESSION_TOKEN_ISSUER", "skinlens"),
		TokenAudience: getEnvOrDefault("SESSION_TOKEN_AUDIENCE", "skinlens-sessions"),
	}
}

func loadFaceCheckConfig() FaceCheckConfig {
	minConfidence := 90.0
	if v := os.Getenv("FACE_CHECK_MIN_CONFIDENCE"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			minConfidence = parsed
		}
	}

	minArea := 0.05
	if v := os.Getenv("FACE_CHECK_MIN_AREA"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed >= 0 && parsed <= 1 {
			minArea = parsed
		}
	}

	enabled := false
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("FACE_CHECK_ENABLED"))); v == "true" || v == "1" {
		enabled = true
	}

	return FaceCheckConfig{
		Enabled:       enabled,
		AWSRegion:     os.Getenv("AWS_REGION"),
		MinConfidence: minConfidence,
		MinAreaRatio:  minArea,
		Timeout:       durationFromEnv("FACE_CHECK_TIMEOUT", 5*time.Second),
	}
}

func durationFromEnv(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

// listFromEnv splits a comma separated variable, dropping blank entries.
func listFromEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func applyEnvOverrides(
	httpAddr *string,
	apiURL *string,
	analyzeTimeout *time.Duration,
	cacheBackend *string,
	redisAddr *string,
	reportBackend *string,
	logLevel *string,
	dbDriver *string,
	dbHost *string,
	dbPort *int,
	dbUser *string,
	dbPassword *string,
	dbName *string,
	dbSSLMode *string,
	dbPath *string,
) {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		*httpAddr = v
	}
	if v := os.Getenv("INFERENCE_API_URL"); v != "" {
		*apiURL = v
	}
	if v := os.Getenv("INFERENCE_ANALYZE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*analyzeTimeout = d
		}
	}
	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		*cacheBackend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		*redisAddr = v
	}
	if v := os.Getenv("REPORT_BACKEND"); v != "" {
		*reportBackend = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		*logLevel = v
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		*dbDriver = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		*dbHost = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			*dbPort = p
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		*dbUser = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		*dbPassword = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		*dbName = v
	}
	if v := os.Getenv("DB_SSLMODE"); v != "" {
		*dbSSLMode = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		*dbPath = v
	}
}
