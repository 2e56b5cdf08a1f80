// Package config provides configuration loading and validation for the advisor pipeline.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/joshsymonds/advisor/pkg/pathutil"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the complete runtime configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Artifacts  ArtifactsConfig  `yaml:"artifacts"`
	Cache      CacheConfig      `yaml:"cache"`
	Lock       LockConfig       `yaml:"lock"`
	Parser     ParserConfig     `yaml:"parser"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Report     ReportConfig     `yaml:"report"`
	Converter  ConverterConfig  `yaml:"converter"`
	Queue      QueueConfig      `yaml:"queue"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// DatabaseConfig selects the SQL driver.
type DatabaseConfig struct {
	Driver string `yaml:"driver" validate:"oneof=sqlite3 postgres"`
	DSN    string `yaml:"dsn" validate:"required"`
}

// ArtifactsConfig selects the blob store holding uploads and rendered reports.
type ArtifactsConfig struct {
	Backend string   `yaml:"backend" validate:"oneof=file s3"`
	BaseDir string   `yaml:"base_dir" validate:"required_if=Backend file"`
	S3      S3Config `yaml:"s3"`
}

// S3Config configures the S3 blob store.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Prefix       string `yaml:"prefix"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// CacheConfig selects the classification/context cache.
type CacheConfig struct {
	Backend string        `yaml:"backend" validate:"oneof=none memory file redis"`
	Dir     string        `yaml:"dir" validate:"required_if=Backend file"`
	TTL     time.Duration `yaml:"ttl" validate:"gte=0"`
	Redis   RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis connection settings shared by cache and lock.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LockConfig selects the per-report job lock.
type LockConfig struct {
	Backend string        `yaml:"backend" validate:"oneof=memory redis"`
	TTL     time.Duration `yaml:"ttl" validate:"gt=0"`
}

// ParserConfig bounds the tabular parser.
type ParserConfig struct {
	MaxRows  int   `yaml:"max_rows" validate:"gt=0"`
	MaxBytes int64 `yaml:"max_bytes" validate:"gt=0"`
}

// ClassifierConfig tunes the commitment classifier.
type ClassifierConfig struct {
	Dictionary       string `yaml:"dictionary"`
	DefaultTermYears int    `yaml:"default_term_years" validate:"oneof=1 3"`
	BatchSize        int    `yaml:"batch_size" validate:"gt=0"`
}

// ReportConfig tunes the report context builder.
type ReportConfig struct {
	DefaultCurrency    string             `yaml:"default_currency" validate:"len=3"`
	TopN               int                `yaml:"top_n" validate:"gt=0"`
	QuickWinPercentile float64            `yaml:"quick_win_percentile" validate:"gte=0,lte=100"`
	HourlyRate         float64            `yaml:"hourly_rate" validate:"gte=0"`
	CostMultiplier     float64            `yaml:"cost_multiplier" validate:"gte=0"`
	SecurityWeights    map[string]float64 `yaml:"security_weights"`
}

// ConverterConfig controls the HTML to PDF engines.
type ConverterConfig struct {
	Mode           string        `yaml:"mode" validate:"oneof=auto primary fallback"`
	Timeout        time.Duration `yaml:"timeout" validate:"gt=0"`
	PrimaryRetries int           `yaml:"primary_retries" validate:"gte=0,lte=5"`
	ChromePath     string        `yaml:"chrome_path"`
	WkhtmltopdfBin string        `yaml:"wkhtmltopdf_bin"`
}

// QueueConfig configures the Kafka job queue.
type QueueConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `yaml:"format" validate:"oneof=text json"`
	Debug  bool   `yaml:"debug"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Database:  DatabaseConfig{Driver: "sqlite3", DSN: "data/advisor.db"},
		Artifacts: ArtifactsConfig{Backend: "file", BaseDir: "data/artifacts"},
		Cache:     CacheConfig{Backend: "memory", Dir: "data/cache", TTL: 24 * time.Hour},
		Lock:      LockConfig{Backend: "memory", TTL: 15 * time.Minute},
		Parser:    ParserConfig{MaxRows: 100_000, MaxBytes: 50 << 20},
		Classifier: ClassifierConfig{
			DefaultTermYears: 3,
			BatchSize:        500,
		},
		Report: ReportConfig{
			DefaultCurrency:    "USD",
			TopN:               10,
			QuickWinPercentile: 75,
			HourlyRate:         150,
			CostMultiplier:     1.0,
			SecurityWeights: map[string]float64{
				"critical": 15,
				"high":     8,
				"medium":   3,
				"low":      1,
			},
		},
		Converter: ConverterConfig{
			Mode:           "auto",
			Timeout:        60 * time.Second,
			PrimaryRetries: 1,
			WkhtmltopdfBin: "wkhtmltopdf",
		},
		Queue: QueueConfig{
			Topic:   "advisor-jobs",
			GroupID: "advisor-workers",
		},
		Metrics: MetricsConfig{Listen: ":9108"},
		Log:     LogConfig{Format: "text"},
	}
}

// Load reads an optional YAML file on top of the defaults, then applies
// .env and ADVISOR_* environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		validPath, err := pathutil.ValidateConfigPath(path)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		data, err := os.ReadFile(validPath) //nolint:gosec // validated above
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config YAML: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	setString("ADVISOR_DB_DRIVER", &c.Database.Driver)
	setString("ADVISOR_DB_DSN", &c.Database.DSN)
	setString("ADVISOR_ARTIFACTS_BACKEND", &c.Artifacts.Backend)
	setString("ADVISOR_ARTIFACTS_DIR", &c.Artifacts.BaseDir)
	setString("ADVISOR_S3_BUCKET", &c.Artifacts.S3.Bucket)
	setString("ADVISOR_S3_REGION", &c.Artifacts.S3.Region)
	setString("ADVISOR_S3_ENDPOINT", &c.Artifacts.S3.Endpoint)
	setString("ADVISOR_CACHE_BACKEND", &c.Cache.Backend)
	setString("ADVISOR_REDIS_ADDR", &c.Cache.Redis.Addr)
	setString("ADVISOR_REDIS_PASSWORD", &c.Cache.Redis.Password)
	setString("ADVISOR_LOCK_BACKEND", &c.Lock.Backend)
	setString("ADVISOR_CONVERTER_MODE", &c.Converter.Mode)
	setString("ADVISOR_CHROME_PATH", &c.Converter.ChromePath)
	setString("ADVISOR_QUEUE_TOPIC", &c.Queue.Topic)
	setString("ADVISOR_LOG_FORMAT", &c.Log.Format)

	if v := getenv("ADVISOR_QUEUE_BROKERS"); v != "" {
		c.Queue.Brokers = strings.Split(v, ",")
	}
	if v := getenv("ADVISOR_CONVERTER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing ADVISOR_CONVERTER_TIMEOUT: %w", err)
		}
		c.Converter.Timeout = d
	}
	if v := getenv("ADVISOR_DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing ADVISOR_DEBUG: %w", err)
		}
		c.Log.Debug = debug
	}
	return nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.Artifacts.Backend == "s3" && c.Artifacts.S3.Bucket == "" {
		return fmt.Errorf("artifacts.s3.bucket is required for the s3 backend")
	}
	usesRedis := c.Cache.Backend == "redis" || c.Lock.Backend == "redis"
	if usesRedis && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr is required when redis is used for cache or lock")
	}
	for severity, weight := range c.Report.SecurityWeights {
		if weight < 0 {
			return fmt.Errorf("report.security_weights.%s must be >= 0", severity)
		}
	}
	return nil
}
