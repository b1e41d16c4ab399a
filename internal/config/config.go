package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	defaultBreakevenThreshold = "3.00"
	defaultMaxImportRows      = 5000
	defaultImportResultTTL    = 24 * time.Hour
	defaultRecomputeSchedule  = "0 30 3 * * *"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Archive  ArchiveConfig  `yaml:"archive"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Mode string `yaml:"mode"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JWTConfig struct {
	Secret      string `yaml:"secret"`
	ExpireHours int    `yaml:"expire_hours"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Dir    string `yaml:"dir"`
	Pretty bool   `yaml:"pretty"`
}

// LedgerConfig holds trade ledger tunables
type LedgerConfig struct {
	// BreakevenThreshold is the default band used until a user saves their own
	BreakevenThreshold string        `yaml:"breakeven_threshold"`
	MaxImportRows      int           `yaml:"max_import_rows"`
	ImportResultTTL    time.Duration `yaml:"import_result_ttl"`
	// RecomputeSchedule is a cron expression with seconds; empty disables the job
	RecomputeSchedule string `yaml:"recompute_schedule"`
}

// ArchiveConfig controls raw import payload archiving to S3
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Region  string `yaml:"region"`
	Prefix  string `yaml:"prefix"`
}

// Load loads configuration from file and environment variables
func Load(path string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Override with environment variables if present
	cfg.loadFromEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFromEnv() {
	// Server
	if v := os.Getenv("SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("SERVER_MODE"); v != "" {
		c.Server.Mode = v
	}

	// Database
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.Port = port
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database.DBName = v
	}

	// Redis
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Redis.Port = port
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}

	// JWT
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWT.Secret = v
	}
	if v := os.Getenv("JWT_EXPIRE_HOURS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil {
			c.JWT.ExpireHours = hours
		}
	}

	// Log
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_DIR"); v != "" {
		c.Log.Dir = v
	}

	// Ledger
	if v := os.Getenv("LEDGER_BREAKEVEN_THRESHOLD"); v != "" {
		c.Ledger.BreakevenThreshold = v
	}
	if v := os.Getenv("LEDGER_MAX_IMPORT_ROWS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Ledger.MaxImportRows = n
		}
	}
	if v, ok := os.LookupEnv("LEDGER_RECOMPUTE_SCHEDULE"); ok {
		c.Ledger.RecomputeSchedule = v
	}

	// Archive
	if v := os.Getenv("ARCHIVE_BUCKET"); v != "" {
		c.Archive.Bucket = v
		c.Archive.Enabled = true
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		c.Archive.Region = v
	}
}

func (c *Config) applyDefaults() {
	if c.Ledger.BreakevenThreshold == "" {
		c.Ledger.BreakevenThreshold = defaultBreakevenThreshold
	}
	if c.Ledger.MaxImportRows == 0 {
		c.Ledger.MaxImportRows = defaultMaxImportRows
	}
	if c.Ledger.ImportResultTTL == 0 {
		c.Ledger.ImportResultTTL = defaultImportResultTTL
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Archive.Prefix == "" {
		c.Archive.Prefix = "imports/"
	}
}

// Default returns a configuration with every ledger default applied and the
// recompute job scheduled
func Default() *Config {
	cfg := &Config{}
	cfg.Ledger.RecomputeSchedule = defaultRecomputeSchedule
	cfg.applyDefaults()
	return cfg
}

// Validate checks ledger settings that would otherwise fail at runtime
func (c *Config) Validate() error {
	if _, err := c.Ledger.Threshold(); err != nil {
		return err
	}
	if c.Ledger.MaxImportRows <= 0 {
		return errors.New("ledger.max_import_rows must be positive")
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return errors.New("archive.bucket is required when archiving is enabled")
	}
	return nil
}

// Threshold parses the configured default breakeven threshold
func (l LedgerConfig) Threshold() (decimal.Decimal, error) {
	th, err := decimal.NewFromString(l.BreakevenThreshold)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger.breakeven_threshold: %w", err)
	}
	if th.IsNegative() {
		return decimal.Zero, errors.New("ledger.breakeven_threshold must not be negative")
	}
	return th, nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}

// Addr returns the host:port the HTTP server listens on
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the Redis host:port address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
