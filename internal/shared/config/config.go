// Package config loads the process configuration. Values come from built-in
// defaults, then an optional YAML file (CONFIG_FILE), then environment
// variables, which win. A .env file in the working directory is loaded into
// the environment first.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Billing   BillingConfig   `yaml:"billing"`
	Listener  ListenerConfig  `yaml:"listener"`
	Firebase  FirebaseConfig  `yaml:"firebase"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	Host            string        `yaml:"host"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	// Path is the SQLite database file.
	Path string `yaml:"path"`
}

type SchedulerConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	ScheduleTimes []string      `yaml:"schedule_times"`
	WorkerCount   int           `yaml:"workers"`
	JobDelay      time.Duration `yaml:"job_delay"`
	JobTimeout    time.Duration `yaml:"job_timeout"`
	QueueSize     int           `yaml:"queue_size"`
	RunOnStartup  bool          `yaml:"run_on_startup"`
}

type BillingConfig struct {
	HorizonMonths int `yaml:"horizon_months"`
	// Location is the IANA zone whose calendar days billing runs on.
	Location string `yaml:"location"`
}

type ListenerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Channel  string        `yaml:"channel"`
	Debounce time.Duration `yaml:"debounce"`
}

type FirebaseConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	// MessagesFile overrides the push texts; empty uses the built-in ones.
	MessagesFile string `yaml:"messages_file"`
}

type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ServiceName  string `yaml:"service_name"`
	Environment  string `yaml:"environment"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	MetricsPort  string `yaml:"metrics_port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			Host:            "0.0.0.0",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:  "postgres",
			Host:    "localhost",
			Port:    5432,
			User:    "carteira",
			DBName:  "carteira",
			SSLMode: "disable",
			Path:    "carteira.db",
		},
		Scheduler: SchedulerConfig{
			Enabled:     true,
			Interval:    time.Hour,
			WorkerCount: 5,
			JobDelay:    0,
			JobTimeout:  2 * time.Minute,
			QueueSize:   1000,
		},
		Billing: BillingConfig{
			HorizonMonths: 6,
			Location:      "America/Sao_Paulo",
		},
		Listener: ListenerConfig{
			Enabled:  true,
			Channel:  "billing_changed",
			Debounce: 2 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "carteira-api",
			Environment:  "development",
			OTLPEndpoint: "localhost:4317",
			MetricsPort:  "9090",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads .env, the file named by CONFIG_FILE (if any) and the environment.
func Load() (*Config, error) {
	LoadEnvFile()
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadEnvFile copies .env from the working directory into the environment.
// Variables already set are kept; a missing file is not an error.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadFile builds the configuration from the YAML file at path (skipped when
// empty) and the environment.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var err error

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("HOST", cfg.Server.Host)

	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	if cfg.Database.Port, err = getIntEnv("DB_PORT", cfg.Database.Port); err != nil {
		return err
	}
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnv("DB_NAME", cfg.Database.DBName)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)
	cfg.Database.Path = getEnv("DB_PATH", cfg.Database.Path)

	cfg.Scheduler.Enabled = getBoolEnv("SCHEDULER_ENABLED", cfg.Scheduler.Enabled)
	if cfg.Scheduler.Interval, err = getDurationEnv("SCHEDULER_INTERVAL", cfg.Scheduler.Interval); err != nil {
		return err
	}
	if times := getEnv("SCHEDULER_TIMES", ""); times != "" {
		cfg.Scheduler.ScheduleTimes = splitList(times)
	}
	if cfg.Scheduler.WorkerCount, err = getIntEnv("SCHEDULER_WORKERS", cfg.Scheduler.WorkerCount); err != nil {
		return err
	}
	if cfg.Scheduler.JobDelay, err = getDurationEnv("SCHEDULER_JOB_DELAY", cfg.Scheduler.JobDelay); err != nil {
		return err
	}
	if cfg.Scheduler.JobTimeout, err = getDurationEnv("SCHEDULER_JOB_TIMEOUT", cfg.Scheduler.JobTimeout); err != nil {
		return err
	}
	if cfg.Scheduler.QueueSize, err = getIntEnv("SCHEDULER_QUEUE_SIZE", cfg.Scheduler.QueueSize); err != nil {
		return err
	}
	cfg.Scheduler.RunOnStartup = getBoolEnv("SCHEDULER_RUN_ON_STARTUP", cfg.Scheduler.RunOnStartup)

	if cfg.Billing.HorizonMonths, err = getIntEnv("BILLING_HORIZON_MONTHS", cfg.Billing.HorizonMonths); err != nil {
		return err
	}
	cfg.Billing.Location = getEnv("BILLING_LOCATION", cfg.Billing.Location)

	cfg.Listener.Enabled = getBoolEnv("LISTENER_ENABLED", cfg.Listener.Enabled)
	cfg.Listener.Channel = getEnv("LISTENER_CHANNEL", cfg.Listener.Channel)
	if cfg.Listener.Debounce, err = getDurationEnv("LISTENER_DEBOUNCE", cfg.Listener.Debounce); err != nil {
		return err
	}

	cfg.Firebase.CredentialsFile = getEnv("FIREBASE_CREDENTIALS_FILE", cfg.Firebase.CredentialsFile)
	cfg.Firebase.MessagesFile = getEnv("MESSAGES_FILE", cfg.Firebase.MessagesFile)

	cfg.Telemetry.Enabled = getBoolEnv("OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.ServiceName = getEnv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
	cfg.Telemetry.Environment = getEnv("ENVIRONMENT", cfg.Telemetry.Environment)
	cfg.Telemetry.OTLPEndpoint = getEnv("OTEL_EXPORTER_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
	cfg.Telemetry.MetricsPort = getEnv("METRICS_PORT", cfg.Telemetry.MetricsPort)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	return nil
}

// Validate checks values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		return errors.New("DB_PATH is required when DB_DRIVER=sqlite")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 && len(c.Scheduler.ScheduleTimes) == 0 {
		return errors.New("scheduler needs SCHEDULER_INTERVAL or SCHEDULER_TIMES")
	}
	if c.Scheduler.WorkerCount < 1 {
		return errors.New("SCHEDULER_WORKERS must be at least 1")
	}
	if c.Billing.HorizonMonths < 1 {
		return errors.New("BILLING_HORIZON_MONTHS must be at least 1")
	}
	if _, err := time.LoadLocation(c.Billing.Location); err != nil {
		return fmt.Errorf("invalid BILLING_LOCATION: %w", err)
	}
	return nil
}

// DSN returns the data source name for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "sqlite" {
		return "file:" + c.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"
	}
	return c.ConnectionString()
}

// ConnectionString returns the lib/pq key/value connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, quoteConnValue(c.Password), c.DBName, c.SSLMode,
	)
}

// quoteConnValue quotes a connection string value when it is empty or has spaces.
func quoteConnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Clock returns time.Now in the billing location.
func (b BillingConfig) Clock() (func() time.Time, error) {
	loc, err := time.LoadLocation(b.Location)
	if err != nil {
		return nil, fmt.Errorf("invalid billing location: %w", err)
	}
	return func() time.Time { return time.Now().In(loc) }, nil
}

// Redacted returns the DSN with the password hidden, for logs.
func (c *DatabaseConfig) Redacted() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	u := url.URL{Scheme: "postgres", User: url.User(c.User), Host: fmt.Sprintf("%s:%d", c.Host, c.Port), Path: c.DBName}
	return u.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
