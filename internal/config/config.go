package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/WailSalutem-Health-Care/user-directory/internal/auth"
	"github.com/WailSalutem-Health-Care/user-directory/internal/storage"
	"github.com/WailSalutem-Health-Care/user-directory/internal/telemetry"
)

// Notification backends
const (
	NotifyLog      = "log"
	NotifyRabbitMQ = "rabbitmq"
)

var (
	ErrUnknownNotifyBackend = errors.New("unknown notification backend")
	ErrInvalidValue         = errors.New("invalid configuration value")
)

// Config holds settings for the console and the development directory
type Config struct {
	Directory DirectoryConfig `yaml:"directory"`
	Storage   StorageConfig   `yaml:"storage"`
	Notify    NotifyConfig    `yaml:"notify"`
	Stub      StubConfig      `yaml:"stub"`

	Auth      auth.Config      `yaml:"-"`
	Telemetry telemetry.Config `yaml:"-"`
}

type DirectoryConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type StorageConfig struct {
	Backend       string        `yaml:"backend"`
	Dir           string        `yaml:"dir"`
	TTL           time.Duration `yaml:"ttl"`
	MaxEntries    int           `yaml:"max_entries"`
	KeyPrefix     string        `yaml:"key_prefix"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
}

type NotifyConfig struct {
	Backend     string `yaml:"backend"`
	RabbitMQURL string `yaml:"rabbitmq_url"`
	Exchange    string `yaml:"exchange"`
}

type StubConfig struct {
	Addr            string `yaml:"addr"`
	PermissionsFile string `yaml:"permissions_file"`
	AllowedOrigins  string `yaml:"allowed_origins"`
}

// Defaults returns the configuration used when nothing is set
func Defaults() Config {
	return Config{
		Directory: DirectoryConfig{
			BaseURL: "http://localhost:8081",
			Timeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Backend:    storage.BackendFile,
			MaxEntries: storage.DefaultMaxEntries,
			KeyPrefix:  storage.DefaultKeyPrefix,
		},
		Notify: NotifyConfig{
			Backend: NotifyLog,
		},
		Stub: StubConfig{
			Addr:            ":8081",
			PermissionsFile: "permissions.yml",
			AllowedOrigins:  "http://localhost:4200",
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then environment variables.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
		log.Printf("Loaded configuration from %s", path)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	cfg.Auth = auth.LoadConfig()
	cfg.Telemetry = telemetry.LoadConfig()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Directory.BaseURL, "DIRECTORY_BASE_URL")
	if err := setDuration(&cfg.Directory.Timeout, "DIRECTORY_TIMEOUT"); err != nil {
		return err
	}

	setString(&cfg.Storage.Backend, "STORAGE_BACKEND")
	setString(&cfg.Storage.Dir, "STORAGE_DIR")
	if err := setDuration(&cfg.Storage.TTL, "STORAGE_TTL"); err != nil {
		return err
	}
	if err := setInt(&cfg.Storage.MaxEntries, "STORAGE_MAX_ENTRIES"); err != nil {
		return err
	}
	setString(&cfg.Storage.KeyPrefix, "STORAGE_KEY_PREFIX")
	setString(&cfg.Storage.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Storage.RedisPassword, "REDIS_PASSWORD")
	if err := setInt(&cfg.Storage.RedisDB, "REDIS_DB"); err != nil {
		return err
	}

	setString(&cfg.Notify.Backend, "NOTIFY_BACKEND")
	setString(&cfg.Notify.RabbitMQURL, "RABBITMQ_URL")
	setString(&cfg.Notify.Exchange, "RABBITMQ_EXCHANGE")

	setString(&cfg.Stub.Addr, "STUB_ADDR")
	setString(&cfg.Stub.PermissionsFile, "PERMISSIONS_FILE")
	setString(&cfg.Stub.AllowedOrigins, "ALLOWED_ORIGINS")
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, v)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, v)
	}
	*dst = n
	return nil
}

// Validate rejects unknown backends
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case storage.BackendMemory, storage.BackendFile, storage.BackendRedis, storage.BackendPostgres:
	default:
		return fmt.Errorf("%w: %q", storage.ErrUnknownBackend, c.Storage.Backend)
	}
	switch c.Notify.Backend {
	case NotifyLog, NotifyRabbitMQ:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownNotifyBackend, c.Notify.Backend)
	}
	if c.Directory.BaseURL == "" {
		return fmt.Errorf("%w: empty directory base URL", ErrInvalidValue)
	}
	return nil
}

// StorageOptions converts the storage section for storage.Open.
// Postgres settings come from the DB_* variables.
func (c Config) StorageOptions() storage.Config {
	return storage.Config{
		Backend:       c.Storage.Backend,
		Dir:           c.Storage.Dir,
		TTL:           c.Storage.TTL,
		MaxEntries:    c.Storage.MaxEntries,
		KeyPrefix:     c.Storage.KeyPrefix,
		RedisAddr:     c.Storage.RedisAddr,
		RedisPassword: c.Storage.RedisPassword,
		RedisDB:       c.Storage.RedisDB,
		Postgres:      storage.PostgresConfigFromEnv(),
	}
}
