package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	IMAP     IMAPConfig     `yaml:"imap"`
	Matcher  MatcherConfig  `yaml:"matcher"`
	Shifts   ShiftsConfig   `yaml:"shifts"`
	Printing PrintingConfig `yaml:"printing"`
	CORS     CORSConfig     `yaml:"cors"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `yaml:"port"`
	Host            string `yaml:"host"`
	ShutdownSeconds int    `yaml:"shutdown_seconds"`
}

// GetHost returns the server host, with environment override
func (c ServerConfig) GetHost() string {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// ShutdownTimeout returns the graceful-drain deadline as a duration
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownSeconds) * time.Second
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the optional Redis connection used for distributed locks.
// Empty URL means the PostgreSQL advisory-lock fallback is used instead.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// IMAPConfig holds mailbox polling configuration
type IMAPConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	Folder      string `yaml:"folder"`
	PollSeconds int    `yaml:"poll_seconds"`
	Secure      bool   `yaml:"secure"`
}

// PollInterval returns the poll cadence as a duration
func (c IMAPConfig) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

// Addr returns host:port for dialing
func (c IMAPConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// MatcherConfig holds product matching configuration
type MatcherConfig struct {
	FuzzyThreshold int `yaml:"fuzzy_threshold"`
}

// ShiftsConfig holds shift lifecycle configuration
type ShiftsConfig struct {
	AutoCloseSeconds int `yaml:"auto_close_seconds"`
}

// AutoCloseInterval returns the auto-closer cadence as a duration
func (c ShiftsConfig) AutoCloseInterval() time.Duration {
	return time.Duration(c.AutoCloseSeconds) * time.Second
}

// PrintingConfig holds comanda rendering and blob storage configuration
type PrintingConfig struct {
	Storage       StorageConfig `yaml:"storage"`
	RenderCommand string        `yaml:"render_command"`
	RenderURL     string        `yaml:"render_url"`
	TemplateDir   string        `yaml:"template_dir"`
	Currency      string        `yaml:"currency"`
}

// StorageConfig holds PDF blob storage configuration
type StorageConfig struct {
	Type       string `yaml:"type"` // "local" or "s3"
	LocalPath  string `yaml:"local_path"`
	S3Bucket   string `yaml:"s3_bucket"`
	AWSRegion  string `yaml:"aws_region"`
	AWSProfile string `yaml:"aws_profile"` // Empty string uses default credential chain
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	return c.AWSProfile
}

// CORSConfig holds allowed origins for the wall display and back office
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Pre-seed the booleans whose default is true; yaml only overrides keys
	// that are present.
	cfg := Config{IMAP: IMAPConfig{Secure: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.ShutdownSeconds == 0 {
		cfg.Server.ShutdownSeconds = 30
	}
	if cfg.IMAP.Port == 0 {
		cfg.IMAP.Port = 993
	}
	if cfg.IMAP.Folder == "" {
		cfg.IMAP.Folder = "INBOX"
	}
	if cfg.IMAP.PollSeconds == 0 {
		cfg.IMAP.PollSeconds = 15
	}
	if cfg.Matcher.FuzzyThreshold == 0 {
		cfg.Matcher.FuzzyThreshold = 80
	}
	if cfg.Shifts.AutoCloseSeconds == 0 {
		cfg.Shifts.AutoCloseSeconds = 30
	}
	if cfg.Printing.Storage.Type == "" {
		cfg.Printing.Storage.Type = "local"
	}
	if cfg.Printing.Storage.LocalPath == "" {
		cfg.Printing.Storage.LocalPath = "./data/pdf"
	}
	if cfg.Printing.Currency == "" {
		cfg.Printing.Currency = "EUR"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}

	// IMAP overrides
	if v := os.Getenv("IMAP_HOST"); v != "" {
		cfg.IMAP.Host = v
	}
	if v := os.Getenv("IMAP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.IMAP.Port = port
		}
	}
	if v := os.Getenv("IMAP_USER"); v != "" {
		cfg.IMAP.User = v
	}
	if v := os.Getenv("IMAP_PASSWORD"); v != "" {
		cfg.IMAP.Password = v
	}
	if v := os.Getenv("IMAP_FOLDER"); v != "" {
		cfg.IMAP.Folder = v
	}
	if v := os.Getenv("IMAP_POLL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.IMAP.PollSeconds = secs
		}
	}
	if v := os.Getenv("IMAP_SECURE"); v != "" {
		if secure, err := strconv.ParseBool(v); err == nil {
			cfg.IMAP.Secure = secure
		}
	}

	if v := os.Getenv("FUZZY_MATCH_THRESHOLD"); v != "" {
		if threshold, err := strconv.Atoi(v); err == nil {
			cfg.Matcher.FuzzyThreshold = threshold
		}
	}

	// Printing overrides
	if v := os.Getenv("PDF_STORAGE_PATH"); v != "" {
		cfg.Printing.Storage.LocalPath = v
	}
	if v := os.Getenv("PDF_S3_BUCKET"); v != "" {
		cfg.Printing.Storage.S3Bucket = v
		cfg.Printing.Storage.Type = "s3"
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Printing.Storage.AWSRegion = v
	}
	if v := os.Getenv("PDF_RENDER_CMD"); v != "" {
		cfg.Printing.RenderCommand = v
	}
	if v := os.Getenv("PDF_RENDER_URL"); v != "" {
		cfg.Printing.RenderURL = v
	}

	return cfg, nil
}
