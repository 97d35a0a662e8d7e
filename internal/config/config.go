package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"reconledger/internal/variance"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Env       string          `koanf:"env"`
	HTTP      HTTPConfig      `koanf:"http"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	Ledger    LedgerConfig    `koanf:"ledger"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Redis     RedisConfig     `koanf:"redis"`
	NATS      NATSConfig      `koanf:"nats"`
	Tracing   TracingConfig   `koanf:"tracing"`
}

type HTTPConfig struct {
	Addr         string        `koanf:"addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type DatabaseConfig struct {
	// DSN is a Postgres URL or keyword string; "sqlite:<path>" selects the
	// embedded SQLite driver for local runs.
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type LogConfig struct {
	Level    string `koanf:"level"`
	Encoding string `koanf:"encoding"`
}

type LedgerConfig struct {
	MaterialityAbsolute     string   `koanf:"materiality_absolute"`
	MaterialityPercent      string   `koanf:"materiality_percent"`
	VariancePolicyPath      string   `koanf:"variance_policy_path"`
	TicketFingerprintIgnore []string `koanf:"ticket_fingerprint_ignore"`
	CashBagSources          []string `koanf:"cash_bag_sources"`
	CashBagIDAttempts       int      `koanf:"cash_bag_id_attempts"`
}

type RateLimitConfig struct {
	Requests      int  `koanf:"requests"`
	WindowSeconds int  `koanf:"window_seconds"`
	FailClosed    bool `koanf:"fail_closed"`
	MaxKeys       int  `koanf:"max_keys"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type NATSConfig struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

type TracingConfig struct {
	ServiceName  string `koanf:"service_name"`
	OTLPEndpoint string `koanf:"otlp_endpoint"`
}

// Load reads defaults, then the YAML file at path (when given), then
// environment overrides.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file: %w", err)
		}
	}
	applyEnvOverrides(k)
	applyDefaults(k)

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv is Load without a file. Invalid values fall back to defaults.
func FromEnv() Config {
	cfg, err := Load("")
	if err != nil {
		k := koanf.New(".")
		applyDefaults(k)
		_ = k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"})
	}
	return cfg
}

// Path resolves the config file location from LEDGER_CONFIG.
func Path() string {
	return os.Getenv("LEDGER_CONFIG")
}

func (c Config) Validate() error {
	if _, err := c.Materiality(); err != nil {
		return fmt.Errorf("ledger materiality: %w", err)
	}
	if len(c.Ledger.CashBagSources) < 2 {
		return fmt.Errorf("ledger.cash_bag_sources needs at least two source systems, got %d", len(c.Ledger.CashBagSources))
	}
	return nil
}

func (c Config) Materiality() (variance.Threshold, error) {
	return variance.ParseThreshold(c.Ledger.MaterialityAbsolute, c.Ledger.MaterialityPercent)
}

func (c Config) RateLimitWindow() time.Duration {
	if c.RateLimit.WindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}

func applyDefaults(k *koanf.Koanf) {
	setDefault(k, "env", "development")
	setDefault(k, "http.addr", ":8080")
	setDefault(k, "http.read_timeout", 10*time.Second)
	setDefault(k, "http.write_timeout", 30*time.Second)
	setDefault(k, "database.max_open_conns", 10)
	setDefault(k, "database.auto_migrate", true)
	setDefault(k, "log.level", "info")
	setDefault(k, "log.encoding", "json")
	setDefault(k, "ledger.materiality_absolute", "0.00")
	setDefault(k, "ledger.materiality_percent", "0")
	setDefault(k, "ledger.cash_bag_sources", []string{"loyverse", "aronium"})
	setDefault(k, "ledger.cash_bag_id_attempts", 8)
	setDefault(k, "rate_limit.window_seconds", 60)
	setDefault(k, "rate_limit.max_keys", 10000)
	setDefault(k, "nats.subject_prefix", "")
	setDefault(k, "tracing.service_name", "reconledger")
}

func applyEnvOverrides(k *koanf.Koanf) {
	setIfEnv(k, "env", "SERVICE_ENV")
	setIfEnv(k, "http.addr", "HTTP_ADDR")
	if secs := envIntDefault("HTTP_READ_TIMEOUT_SECONDS", 0); secs > 0 {
		k.Set("http.read_timeout", time.Duration(secs)*time.Second)
	}
	if secs := envIntDefault("HTTP_WRITE_TIMEOUT_SECONDS", 0); secs > 0 {
		k.Set("http.write_timeout", time.Duration(secs)*time.Second)
	}
	setIfEnv(k, "database.dsn", "POSTGRES_DSN")
	if n := envIntDefault("DB_MAX_OPEN_CONNS", 0); n > 0 {
		k.Set("database.max_open_conns", n)
	}
	if v := os.Getenv("DB_AUTO_MIGRATE"); v != "" {
		k.Set("database.auto_migrate", envBoolDefault("DB_AUTO_MIGRATE", true))
	}
	setIfEnv(k, "log.level", "LOG_LEVEL")
	setIfEnv(k, "log.encoding", "LOG_ENCODING")
	setIfEnv(k, "ledger.materiality_absolute", "MATERIALITY_ABSOLUTE")
	setIfEnv(k, "ledger.materiality_percent", "MATERIALITY_PERCENT")
	setIfEnv(k, "ledger.variance_policy_path", "VARIANCE_POLICY_PATH")
	if keys := envList("TICKET_FINGERPRINT_IGNORE"); len(keys) > 0 {
		k.Set("ledger.ticket_fingerprint_ignore", keys)
	}
	if sources := envList("CASH_BAG_SOURCES"); len(sources) > 0 {
		k.Set("ledger.cash_bag_sources", sources)
	}
	if n := envIntDefault("CASH_BAG_ID_ATTEMPTS", 0); n > 0 {
		k.Set("ledger.cash_bag_id_attempts", n)
	}
	if n := envIntDefault("RATE_LIMIT_REQUESTS", 0); n > 0 {
		k.Set("rate_limit.requests", n)
	}
	if n := envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 0); n > 0 {
		k.Set("rate_limit.window_seconds", n)
	}
	if os.Getenv("RATE_LIMIT_FAIL_CLOSED") != "" {
		k.Set("rate_limit.fail_closed", envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false))
	}
	if n := envIntDefault("RATE_LIMIT_MAX_KEYS", 0); n > 0 {
		k.Set("rate_limit.max_keys", n)
	}
	setIfEnv(k, "redis.addr", "REDIS_ADDR")
	setIfEnv(k, "redis.password", "REDIS_PASSWORD")
	if n := envIntDefault("REDIS_DB", 0); n > 0 {
		k.Set("redis.db", n)
	}
	setIfEnv(k, "nats.url", "NATS_URL")
	setIfEnv(k, "nats.subject_prefix", "NATS_SUBJECT_PREFIX")
	setIfEnv(k, "tracing.service_name", "OTEL_SERVICE_NAME")
	setIfEnv(k, "tracing.otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefault(k *koanf.Koanf, key string, value any) {
	if !k.Exists(key) {
		k.Set(key, value)
	}
}

func setIfEnv(k *koanf.Koanf, key, env string) {
	if v := os.Getenv(env); v != "" {
		k.Set(key, v)
	}
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
