package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/osvaldoandrade/elqbulk/internal/backoff"
	"github.com/osvaldoandrade/elqbulk/pkg/auth"
	"github.com/osvaldoandrade/elqbulk/pkg/persistence"
)

type RateLimitBucketConfig struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	BurstSize         int `yaml:"burstSize"`
}

type RateLimitConfig struct {
	// JobCreate is applied per bearer token on POST /jobs.
	JobCreate RateLimitBucketConfig `yaml:"jobCreate"`
	// Webhook is applied per webhook URL.
	Webhook RateLimitBucketConfig `yaml:"webhook"`
}

type WebhookConfig struct {
	HmacSecret         string `yaml:"hmacSecret"`
	MaxAttempts        int    `yaml:"maxAttempts"`
	BaseBackoffSeconds int    `yaml:"baseBackoffSeconds"`
	MaxBackoffSeconds  int    `yaml:"maxBackoffSeconds"`
	BackoffPolicy      string `yaml:"backoffPolicy"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"serviceName"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	OTLPInsecure bool    `yaml:"otlpInsecure"`
	SampleRatio  float64 `yaml:"sampleRatio"`
}

type Config struct {
	Port      int    `yaml:"port"`
	Env       string `yaml:"env"`
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
	Timezone  string `yaml:"timezone"`

	// RedisAddr enables the shared token-bucket limiter and is the default
	// address for the redis persistence provider.
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	Persistence persistence.ProviderConfig `yaml:"persistence"`
	Auth        auth.ProviderConfig        `yaml:"auth"`
	// RequiredScope, when set, must be present in the bearer token claims.
	RequiredScope string `yaml:"requiredScope"`

	EndpointTemplate string `yaml:"endpointTemplate"`
	UserAgent        string `yaml:"userAgent"`

	MaxActiveJobs          int    `yaml:"maxActiveJobs"`
	MaxCSVBytes            int64  `yaml:"maxCsvBytes"`
	JobRetentionHours      int    `yaml:"jobRetentionHours"`
	CleanupIntervalSeconds int    `yaml:"cleanupIntervalSeconds"`
	LocalArtifactsDir      string `yaml:"localArtifactsDir"`

	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// LoadConfig reads filePath, applies ELQBULK_* environment overrides and
// fills defaults.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}
	c.applyEnv()
	c.applyDefaults()
	return &c, nil
}

// LoadConfigOptional behaves like LoadConfig but treats a blank or missing
// path as an empty file.
func LoadConfigOptional(filePath string) (*Config, error) {
	if strings.TrimSpace(filePath) != "" {
		cfg, err := LoadConfig(filePath)
		if err == nil || !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
	}
	var c Config
	c.applyEnv()
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyEnv() {
	envInt("PORT", &c.Port)
	envInt("ELQBULK_PORT", &c.Port)
	envString("ELQBULK_ENV", &c.Env)
	envString("ELQBULK_LOG_LEVEL", &c.LogLevel)
	envString("ELQBULK_LOG_FORMAT", &c.LogFormat)
	envString("ELQBULK_TIMEZONE", &c.Timezone)
	envString("ELQBULK_REDIS_ADDR", &c.RedisAddr)
	envString("ELQBULK_REDIS_PASSWORD", &c.RedisPassword)
	envString("ELQBULK_PERSISTENCE", &c.Persistence.Type)
	envString("ELQBULK_ENDPOINT_TEMPLATE", &c.EndpointTemplate)
	envInt("ELQBULK_MAX_ACTIVE_JOBS", &c.MaxActiveJobs)
	envInt("ELQBULK_JOB_RETENTION_HOURS", &c.JobRetentionHours)
	envString("ELQBULK_LOCAL_ARTIFACTS_DIR", &c.LocalArtifactsDir)
	envString("ELQBULK_WEBHOOK_HMAC_SECRET", &c.Webhook.HmacSecret)
	envString("ELQBULK_REQUIRED_SCOPE", &c.RequiredScope)
	if v := os.Getenv("ELQBULK_MAX_CSV_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxCSVBytes = n
		}
	}
	// Shortcut for single-operator deployments.
	if v := strings.TrimSpace(os.Getenv("ELQBULK_AUTH_TOKEN")); v != "" {
		c.Auth = auth.ProviderConfig{Type: "static", Config: map[string]any{"token": v}}
	}
	if v := os.Getenv("ELQBULK_TRACING_ENABLED"); v != "" {
		c.Tracing.Enabled, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("ELQBULK_TRACING_SAMPLE_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Tracing.SampleRatio = f
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.Persistence.Type == "" {
		c.Persistence.Type = "memory"
	}
	if c.Persistence.Type == "redis" {
		if c.Persistence.Config == nil {
			c.Persistence.Config = map[string]any{}
		}
		if _, ok := c.Persistence.Config["addr"]; !ok && c.RedisAddr != "" {
			c.Persistence.Config["addr"] = c.RedisAddr
			c.Persistence.Config["password"] = c.RedisPassword
		}
	}
	if c.MaxActiveJobs <= 0 {
		c.MaxActiveJobs = 4
	}
	if c.MaxCSVBytes <= 0 {
		c.MaxCSVBytes = 10 << 20
	}
	if c.JobRetentionHours <= 0 {
		c.JobRetentionHours = 72
	}
	if c.CleanupIntervalSeconds <= 0 {
		c.CleanupIntervalSeconds = 300
	}
	if c.LocalArtifactsDir == "" {
		c.LocalArtifactsDir = "/tmp/elqbulk-artifacts"
	}
	if c.Webhook.MaxAttempts <= 0 {
		c.Webhook.MaxAttempts = 5
	}
	if c.Webhook.BaseBackoffSeconds <= 0 {
		c.Webhook.BaseBackoffSeconds = 2
	}
	if c.Webhook.MaxBackoffSeconds <= 0 {
		c.Webhook.MaxBackoffSeconds = 60
	}
	if c.Webhook.BackoffPolicy == "" {
		c.Webhook.BackoffPolicy = "exp_full_jitter"
	}
}


func (c *Config) Validate() error {
	var errs []string
	dev := strings.EqualFold(strings.TrimSpace(c.Env), "dev")

	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, "port must be between 0 and 65535")
	}
	switch c.Persistence.Type {
	case "memory":
	case "redis":
		if addr, _ := c.Persistence.Config["addr"].(string); addr == "" {
			errs = append(errs, "persistence.config.addr (or redisAddr) is required for redis persistence")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown persistence type %q", c.Persistence.Type))
	}
	if !c.Auth.Enabled() && !dev {
		errs = append(errs, "auth provider is required in non-dev")
	}
	if c.EndpointTemplate != "" {
		if !strings.Contains(c.EndpointTemplate, "{siteId}") {
			errs = append(errs, "endpointTemplate must contain {siteId}")
		} else if u, err := url.Parse(strings.ReplaceAll(c.EndpointTemplate, "{siteId}", "1")); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, "endpointTemplate must be a valid http(s) URL")
		}
	}
	if _, err := backoff.ParsePolicy(c.Webhook.BackoffPolicy); err != nil {
		errs = append(errs, "webhook.backoffPolicy: "+err.Error())
	}
	if strings.TrimSpace(c.Webhook.HmacSecret) == "" && !dev {
		errs = append(errs, "webhook.hmacSecret is required in non-dev")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, "tracing.sampleRatio must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
