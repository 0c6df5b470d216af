package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Store backends
const (
	StoreFile     = "file"
	StoreDynamoDB = "dynamodb"
)

// Image providers
const (
	ProviderReve    = "reve"
	ProviderBedrock = "bedrock"
)

// Config holds application configuration loaded from environment variables
type Config struct {
	// HTTP
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":3000"`
	BasePath   string `envconfig:"BASE_PATH"`

	// Slack
	SlackVerificationToken string `envconfig:"SLACK_VERIFICATION_TOKEN"`
	SlackFallbackToken     string `envconfig:"SLACKBOT_OAUTH_TOKEN"`
	StrictCredentials      bool   `envconfig:"STRICT_CREDENTIALS" default:"true"`
	SlackAPIURL            string `envconfig:"SLACK_API_URL" default:"https://slack.com/api/"`
	SlackClientID          string `envconfig:"SLACK_CLIENT_ID"`
	SlackClientSecret      string `envconfig:"SLACK_CLIENT_SECRET"`
	SlackRedirectURL       string `envconfig:"SLACK_REDIRECT_URL"`

	// Tenant config storage
	ConfigStore string `envconfig:"CONFIG_STORE" default:"file"`
	ConfigDir   string `envconfig:"CONFIG_DIR" default:"./config"`
	TenantTable string `envconfig:"TENANT_TABLE" default:"jonbot-tenants"`

	// AWS
	AWSRegion string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Image generation
	ImageProvider       string        `envconfig:"IMAGE_PROVIDER" default:"reve"`
	ReveAPIURL          string        `envconfig:"REVE_API_URL" default:"https://preview.reve.art"`
	BedrockImageModelID string        `envconfig:"BEDROCK_IMAGE_MODEL_ID" default:"amazon.titan-image-generator-v2:0"`
	GenerationTimeout   time.Duration `envconfig:"GENERATION_TIMEOUT" default:"120s"`
	HTTPTimeout         time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`

	// Environment
	Environment string `envconfig:"ENVIRONMENT" default:"dev"`
}

// Load reads configuration from an optional .env file and the environment
func Load() (*Config, error) {
	cfg, err := Process()
	if err != nil {
		return nil, err
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Process reads configuration like Load but does not validate it
func Process() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded, continuing with system env vars")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	cfg.SlackVerificationToken = strings.TrimSpace(cfg.SlackVerificationToken)

	return &cfg, nil
}

// Validate checks that required configuration is present
func (c *Config) Validate() error {
	if c.SlackVerificationToken == "" {
		return fmt.Errorf("SLACK_VERIFICATION_TOKEN is required")
	}
	if err := c.ValidateStore(); err != nil {
		return err
	}
	switch c.ImageProvider {
	case ProviderReve:
		if c.ReveAPIURL == "" {
			return fmt.Errorf("REVE_API_URL is required for the reve provider")
		}
	case ProviderBedrock:
		if c.BedrockImageModelID == "" {
			return fmt.Errorf("BEDROCK_IMAGE_MODEL_ID is required for the bedrock provider")
		}
	default:
		return fmt.Errorf("IMAGE_PROVIDER must be %q or %q, got %q", ProviderReve, ProviderBedrock, c.ImageProvider)
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT must be positive")
	}
	return nil
}

// ValidateStore checks the tenant store settings only. The operator CLI
// needs nothing else.
func (c *Config) ValidateStore() error {
	switch c.ConfigStore {
	case StoreFile:
		if c.ConfigDir == "" {
			return fmt.Errorf("CONFIG_DIR is required for the file store")
		}
	case StoreDynamoDB:
		if c.TenantTable == "" {
			return fmt.Errorf("TENANT_TABLE is required for the dynamodb store")
		}
	default:
		return fmt.Errorf("CONFIG_STORE must be %q or %q, got %q", StoreFile, StoreDynamoDB, c.ConfigStore)
	}
	return nil
}

// UsesAWS reports whether the store or the image provider runs on AWS
func (c *Config) UsesAWS() bool {
	return c.ConfigStore == StoreDynamoDB || c.ImageProvider == ProviderBedrock
}

// OAuthConfigured reports whether the installation exchange can run
func (c *Config) OAuthConfigured() bool {
	return c.SlackClientID != "" && c.SlackClientSecret != ""
}

// RoutePrefix returns BasePath normalized to "" or "/path" without a trailing slash
func (c *Config) RoutePrefix() string {
	p := strings.Trim(strings.TrimSpace(c.BasePath), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}
