package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/jengzang/drivesense-backend/internal/analysis/window"
)

// DefaultJWTSecret is only suitable for local development
const DefaultJWTSecret = "your-secret-key-change-in-production"

// Config 应用配置
type Config struct {
	Port string

	DBDriver string // sqlite or mongo
	DBPath   string
	MongoURI string
	DBName   string

	JWTSecret string
	JWTIssuer string

	ClassifierBundle string
	RegressorBundle  string
	InferenceWorkers int
	InferenceQueue   int

	WindowPolicy    window.Policy
	LiveIdleTimeout time.Duration

	RateLimit       int // per user
	IPRateLimit     int // per client IP, counted before authentication
	RateLimitWindow time.Duration

	LogLevel  string
	LogFormat string

	ShutdownTimeout time.Duration

	// malformed environment values, reported by Validate
	envErrs []error
}

// Load reads the environment, then lets command-line flags override it
func Load(args []string) (*Config, error) {
	cfg := fromEnv()

	fs := pflag.NewFlagSet("drivesense", pflag.ContinueOnError)
	fs.StringVar(&cfg.Port, "port", cfg.Port, "listen address (PORT)")
	fs.StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, "store backend: sqlite or mongo (DB_DRIVER)")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database file (DB_PATH)")
	fs.StringVar(&cfg.MongoURI, "mongodb-uri", cfg.MongoURI, "MongoDB connection string (MONGODB_URI)")
	fs.StringVar(&cfg.DBName, "db-name", cfg.DBName, "MongoDB database name (DB_NAME)")
	fs.StringVar(&cfg.JWTIssuer, "jwt-issuer", cfg.JWTIssuer, "required token issuer, empty to skip (JWT_ISSUER)")
	fs.StringVar(&cfg.ClassifierBundle, "classifier", cfg.ClassifierBundle, "behaviour classifier bundle (CLASSIFIER_BUNDLE)")
	fs.StringVar(&cfg.RegressorBundle, "regressor", cfg.RegressorBundle, "maintenance regressor bundle (REGRESSOR_BUNDLE)")
	fs.IntVar(&cfg.InferenceWorkers, "inference-workers", cfg.InferenceWorkers, "concurrent model calls (INFERENCE_WORKERS)")
	fs.IntVar(&cfg.InferenceQueue, "inference-queue", cfg.InferenceQueue, "queued model calls before callers block (INFERENCE_QUEUE)")
	policy := fs.String("window-policy", string(cfg.WindowPolicy), "replace or accumulate (WINDOW_POLICY)")
	fs.DurationVar(&cfg.LiveIdleTimeout, "live-idle-timeout", cfg.LiveIdleTimeout, "close silent live connections, 0 disables (LIVE_IDLE_TIMEOUT)")
	fs.IntVar(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "requests per window per user, 0 disables (RATE_LIMIT)")
	fs.IntVar(&cfg.IPRateLimit, "ip-rate-limit", cfg.IPRateLimit, "requests per window per client IP, 0 disables (IP_RATE_LIMIT)")
	fs.DurationVar(&cfg.RateLimitWindow, "rate-limit-window", cfg.RateLimitWindow, "rate limit window (RATE_LIMIT_WINDOW)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error (LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text or json (LOG_FORMAT)")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown limit (SHUTDOWN_TIMEOUT)")
	fs.SetOutput(io.Discard)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fs.SetOutput(os.Stderr)
			fs.PrintDefaults()
		}
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	p, err := window.ParsePolicy(*policy)
	if err != nil {
		return nil, err
	}
	cfg.WindowPolicy = p

	if !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() *Config {
	var env envReader
	cfg := &Config{
		Port:             env.getString("PORT", ":8080"),
		DBDriver:         env.getString("DB_DRIVER", "sqlite"),
		DBPath:           env.getString("DB_PATH", "./data/drivesense.db"),
		MongoURI:         env.getString("MONGODB_URI", "mongodb://localhost:27017"),
		DBName:           env.getString("DB_NAME", "drivesense"),
		JWTSecret:        env.getString("JWT_SECRET", DefaultJWTSecret),
		JWTIssuer:        env.getString("JWT_ISSUER", ""),
		ClassifierBundle: env.getString("CLASSIFIER_BUNDLE", "./models/behavior_classifier.yaml"),
		RegressorBundle:  env.getString("REGRESSOR_BUNDLE", "./models/maintenance_regressor.yaml"),
		InferenceWorkers: env.getInt("INFERENCE_WORKERS", runtime.NumCPU()),
		InferenceQueue:   env.getInt("INFERENCE_QUEUE", 64),
		WindowPolicy:     window.Policy(env.getString("WINDOW_POLICY", string(window.PolicyReplace))),
		LiveIdleTimeout:  env.getDuration("LIVE_IDLE_TIMEOUT", 0),
		RateLimit:        env.getInt("RATE_LIMIT", 600),
		IPRateLimit:      env.getInt("IP_RATE_LIMIT", 1200),
		RateLimitWindow:  env.getDuration("RATE_LIMIT_WINDOW", time.Minute),
		LogLevel:         env.getString("LOG_LEVEL", "info"),
		LogFormat:        env.getString("LOG_FORMAT", "text"),
		ShutdownTimeout:  env.getDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
	cfg.envErrs = env.errs
	return cfg
}

// Validate checks value ranges and enumerations
func (c *Config) Validate() error {
	errs := append([]error(nil), c.envErrs...)

	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for sqlite"))
		}
	case "mongo":
		if c.MongoURI == "" || c.DBName == "" {
			errs = append(errs, errors.New("MONGODB_URI and DB_NAME are required for mongo"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver))
	}

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}
	if c.ClassifierBundle == "" || c.RegressorBundle == "" {
		errs = append(errs, errors.New("both model bundles are required"))
	}
	if c.InferenceWorkers < 1 {
		errs = append(errs, fmt.Errorf("INFERENCE_WORKERS must be positive, got %d", c.InferenceWorkers))
	}
	if c.InferenceQueue < 0 {
		errs = append(errs, fmt.Errorf("INFERENCE_QUEUE must not be negative, got %d", c.InferenceQueue))
	}
	if c.LiveIdleTimeout < 0 {
		errs = append(errs, errors.New("LIVE_IDLE_TIMEOUT must not be negative"))
	}
	if c.RateLimit < 0 || c.IPRateLimit < 0 {
		errs = append(errs, errors.New("RATE_LIMIT and IP_RATE_LIMIT must not be negative"))
	}
	if (c.RateLimit > 0 || c.IPRateLimit > 0) && c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("rate limits need a positive RATE_LIMIT_WINDOW"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// NewLogger builds the process logger described by LOG_LEVEL and LOG_FORMAT
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown LOG_LEVEL %q", s)
	}
	return level, nil
}

// envReader reads typed environment values, collecting parse errors
// instead of silently falling back to the default.
type envReader struct {
	errs []error
}

func (e *envReader) getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (e *envReader) getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return fallback
	}
	return n
}

func (e *envReader) getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return fallback
	}
	return d
}
