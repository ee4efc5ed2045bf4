package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-relay/internal/archive"
	"github.com/miradorstack/mirador-relay/internal/models"
)

// Config captures every setting of the relay CLI and server.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Remote    RemoteConfig    `yaml:"remote"`
	Logging   LoggingConfig   `yaml:"logging"`
	Rules     RulesConfig     `yaml:"rules"`
	Service   ServiceConfig   `yaml:"service"`
	Ticketing TicketingConfig `yaml:"ticketing"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Harness   HarnessConfig   `yaml:"harness"`
	Slack     SlackConfig     `yaml:"slack"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address" validate:"required"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout" validate:"gte=0"`
}

// RemoteConfig points the CLI at a running relay server instead of reporting in-process.
type RemoteConfig struct {
	Address string        `yaml:"address"`
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// RulesConfig controls rule-pack loading for failure classification.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// ServiceConfig identifies the service in incident records.
type ServiceConfig struct {
	Name          string `yaml:"name" validate:"required"`
	Version       string `yaml:"version"`
	PipelineName  string `yaml:"pipelineName"`
	ArtifactName  string `yaml:"artifactName"`
	RepositoryURL string `yaml:"repositoryURL" validate:"omitempty,url"`
	// OwnerDomain completes the fallback on-call address.
	OwnerDomain string `yaml:"ownerDomain"`
}

// TicketingConfig configures Jira and the local ledger used without credentials.
type TicketingConfig struct {
	BaseURL            string        `yaml:"baseURL" validate:"omitempty,url"`
	Email              string        `yaml:"email" validate:"omitempty,email"`
	Token              string        `yaml:"token"`
	Project            string        `yaml:"project" validate:"required,alphanum"`
	IssueType          string        `yaml:"issueType"`
	Priority           string        `yaml:"priority"`
	RichText           bool          `yaml:"richText"`
	Timeout            time.Duration `yaml:"timeout" validate:"gte=0"`
	RequireCredentials bool          `yaml:"requireCredentials"`
	LedgerPath         string        `yaml:"ledgerPath" validate:"required"`
}

// HasCredentials reports whether Jira can be called.
func (t TicketingConfig) HasCredentials() bool {
	return t.BaseURL != "" && t.Email != "" && t.Token != ""
}

// Dedup backends.
const (
	BackendAuto   = "auto"
	BackendValkey = "valkey"
	BackendBadger = "badger"
	BackendMemory = "memory"
	BackendLabel  = "label"
)

// DedupConfig selects the fingerprint store.
type DedupConfig struct {
	// Backend is one of auto, valkey, badger, memory, label. auto uses Valkey when an
	// address is set and otherwise searches ticket labels.
	Backend string        `yaml:"backend" validate:"oneof=auto valkey badger memory label"`
	TTL     time.Duration `yaml:"ttl" validate:"gte=0"`
	Valkey  CacheConfig   `yaml:"valkey"`
	Badger  BadgerConfig  `yaml:"badger"`
}

// CacheConfig configures the Valkey dedup backend.
type CacheConfig struct {
	Addr         string        `yaml:"addr" validate:"omitempty,hostname_port"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db" validate:"gte=0"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries" validate:"gte=0"`
	TLS          bool          `yaml:"tls"`
}

// BadgerConfig configures the embedded dedup backend.
type BadgerConfig struct {
	Path string `yaml:"path"`
}

// ArchiveConfig configures flight recorder uploads.
type ArchiveConfig struct {
	Bucket          string        `yaml:"bucket"`
	Project         string        `yaml:"project"`
	CredentialsFile string        `yaml:"credentialsFile"`
	MaxAttempts     int           `yaml:"maxAttempts" validate:"gte=1,lte=10"`
	BaseDelay       time.Duration `yaml:"baseDelay" validate:"gte=0"`
	MaxJitter       time.Duration `yaml:"maxJitter" validate:"gte=0"`
	MaxDelay        time.Duration `yaml:"maxDelay" validate:"gte=0"`
}

// Phase is one harness step.
type Phase struct {
	Name    string `yaml:"name" validate:"required"`
	Command string `yaml:"command" validate:"required"`
}

// HarnessConfig configures `relay exec`.
type HarnessConfig struct {
	MaxRetries int           `yaml:"maxRetries" validate:"gte=0"`
	Backoff    time.Duration `yaml:"backoff" validate:"gte=0"`
	Phases     []Phase       `yaml:"phases" validate:"dive"`
}

// SlackConfig configures creation announcements.
type SlackConfig struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
	APIURL  string `yaml:"apiURL" validate:"omitempty,url"`
}

// ErrInvalid wraps validation failures so callers can distinguish configuration errors.
var ErrInvalid = errors.New("invalid configuration")

var validate = validator.New()

// Load initialises Config from a YAML file, a .env file, and environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("RELAY_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := LoadDotEnv(os.Getenv("RELAY_ENV_FILE")); err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv reads KEY=VALUE pairs into the process environment without overriding
// variables already set. An empty path means ".env"; a missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Dedup.Backend == BackendValkey && c.Dedup.Valkey.Addr == "" {
		return fmt.Errorf("%w: dedup.valkey.addr is required for the valkey backend", ErrInvalid)
	}
	if c.Dedup.Backend == BackendBadger && c.Dedup.Badger.Path == "" {
		return fmt.Errorf("%w: dedup.badger.path is required for the badger backend", ErrInvalid)
	}
	return nil
}

// ArchiveBucket is the configured bucket or the project default.
func (c *Config) ArchiveBucket() string {
	if c.Archive.Bucket != "" {
		return c.Archive.Bucket
	}
	return archive.DefaultBucket(c.Archive.Project)
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Remote:  RemoteConfig{Timeout: 30 * time.Second},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Rules:   RulesConfig{Path: "configs/rules/default.yaml"},
		Service: ServiceConfig{
			Name:         "mirador-relay",
			Version:      "dev",
			PipelineName: "ci",
			OwnerDomain:  "example.com",
		},
		Ticketing: TicketingConfig{
			Project:    "OPS",
			IssueType:  "Bug",
			Priority:   "Highest",
			RichText:   true,
			Timeout:    15 * time.Second,
			LedgerPath: ".relay/ledger.jsonl",
		},
		Dedup: DedupConfig{
			Backend: BackendAuto,
			TTL:     7 * 24 * time.Hour,
			Valkey: CacheConfig{
				DialTimeout:  2 * time.Second,
				ReadTimeout:  500 * time.Millisecond,
				WriteTimeout: 500 * time.Millisecond,
				MaxRetries:   2,
			},
		},
		Archive: ArchiveConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxJitter:   time.Second,
			MaxDelay:    30 * time.Second,
		},
		Harness: HarnessConfig{
			MaxRetries: 2,
			Backoff:    time.Second,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RELAY_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("RELAY_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("RELAY_REMOTE_ADDRESS"); v != "" {
		cfg.Remote.Address = v
	}
	if v := os.Getenv("RELAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RELAY_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("RELAY_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("RELAY_SERVICE_NAME"); v != "" {
		cfg.Service.Name = v
	}
	if v := os.Getenv("RELAY_SERVICE_VERSION"); v != "" {
		cfg.Service.Version = v
	}
	if v := os.Getenv("RELAY_OWNER_DOMAIN"); v != "" {
		cfg.Service.OwnerDomain = v
	}

	if v := os.Getenv("JIRA_BASE_URL"); v != "" {
		cfg.Ticketing.BaseURL = v
	}
	if v := os.Getenv("JIRA_USER_EMAIL"); v != "" {
		cfg.Ticketing.Email = v
	}
	if v := os.Getenv("JIRA_API_TOKEN"); v != "" {
		cfg.Ticketing.Token = v
	}
	if v := os.Getenv("JIRA_PROJECT_KEY"); v != "" {
		cfg.Ticketing.Project = v
	}
	if v := os.Getenv("RELAY_REQUIRE_CREDENTIALS"); v != "" {
		cfg.Ticketing.RequireCredentials = truthy(v)
	}
	if v := os.Getenv("RELAY_LEDGER_PATH"); v != "" {
		cfg.Ticketing.LedgerPath = v
	}

	if v := os.Getenv("RELAY_DEDUP_BACKEND"); v != "" {
		cfg.Dedup.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("RELAY_DEDUP_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Dedup.TTL = d
		}
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		if !strings.Contains(v, ":") {
			v += ":6379"
		}
		cfg.Dedup.Valkey.Addr = v
	}
	if v := os.Getenv("RELAY_VALKEY_ADDR"); v != "" {
		cfg.Dedup.Valkey.Addr = v
	}
	if v := os.Getenv("RELAY_VALKEY_PASSWORD"); v != "" {
		cfg.Dedup.Valkey.Password = v
	}
	if v := os.Getenv("RELAY_VALKEY_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Dedup.Valkey.DB = db
		}
	}
	if v := os.Getenv("RELAY_VALKEY_TLS"); truthy(v) {
		cfg.Dedup.Valkey.TLS = true
	}
	if v := os.Getenv("RELAY_BADGER_PATH"); v != "" {
		cfg.Dedup.Badger.Path = v
	}

	if v := os.Getenv("GCP_PROJECT_ID"); v != "" {
		cfg.Archive.Project = v
	}
	if v := os.Getenv("RELAY_ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
	}
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" {
		cfg.Archive.CredentialsFile = v
	}

	if v := os.Getenv("RELAY_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Harness.MaxRetries = n
		}
	}

	if v := os.Getenv("SLACK_BOT_TOKEN"); v != "" {
		cfg.Slack.Token = v
	}
	if v := os.Getenv("SLACK_CHANNEL"); v != "" {
		cfg.Slack.Channel = v
	}
}

// CISignals reads the CI environment once.
func CISignals() models.CISignals {
	ci := models.CISignals{
		CI:         truthy(os.Getenv("CI")),
		Ref:        os.Getenv("GITHUB_REF_NAME"),
		Repository: os.Getenv("GITHUB_REPOSITORY"),
		RunID:      os.Getenv("GITHUB_RUN_ID"),
		ServerURL:  strings.TrimRight(os.Getenv("GITHUB_SERVER_URL"), "/"),
		SHA:        os.Getenv("GITHUB_SHA"),
		DeployEnv:  os.Getenv("DEPLOY_ENV"),
	}
	if truthy(os.Getenv("GITHUB_ACTIONS")) {
		ci.CI = true
		ci.Provider = "GitHub Actions"
	}
	return ci
}

func truthy(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
