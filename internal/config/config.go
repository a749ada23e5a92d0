package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	AWS      AWSConfig      `yaml:"aws"`
	Storage  StorageConfig  `yaml:"storage"`
	SES      SESConfig      `yaml:"ses"`
	Queues   QueueConfig    `yaml:"queues"`
	Tracking TrackingConfig `yaml:"tracking"`
	Drip     DripConfig     `yaml:"drip"`
	Redis    RedisConfig    `yaml:"redis"`
	Archive  ArchiveConfig  `yaml:"archive"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// AWSConfig holds shared AWS SDK settings
type AWSConfig struct {
	Region  string `yaml:"region"`
	Profile string `yaml:"profile"` // Empty string uses default credential chain (IAM role on ECS)
}

// GetProfile returns the AWS profile, with environment variable override
func (c AWSConfig) GetProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.Profile
}

// StorageConfig holds DynamoDB table names
type StorageConfig struct {
	CampaignTable string `yaml:"campaign_table"`
	TrackingTable string `yaml:"tracking_table"`
}

// SESConfig holds AWS SES sending configuration
type SESConfig struct {
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	Region           string `yaml:"region"`
	FromEmail        string `yaml:"from_email"`
	ConfigurationSet string `yaml:"configuration_set"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// QueueConfig holds SQS queue URLs and ARNs. The ARNs are EventBridge
// Scheduler targets for deferred deliveries onto the same queues.
type QueueConfig struct {
	SendQueueURL     string `yaml:"send_queue_url"`
	SendQueueARN     string `yaml:"send_queue_arn"`
	FollowupQueueURL string `yaml:"followup_queue_url"`
	FollowupQueueARN string `yaml:"followup_queue_arn"`
}

// TrackingConfig holds the public tracking endpoint settings
type TrackingConfig struct {
	Domain string `yaml:"domain"` // host serving the pixel and click endpoints
}

// DripConfig holds drip follow-up scheduling settings
type DripConfig struct {
	SchedulerGroup   string `yaml:"scheduler_group"`
	SchedulerRoleARN string `yaml:"scheduler_role_arn"`
}

// RedisConfig holds Redis cache settings. Redis is optional; everything
// degrades to direct store reads when it is absent.
type RedisConfig struct {
	Addr            string `yaml:"addr"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	StatsTTLSeconds int    `yaml:"stats_ttl_seconds"`
}

// StatsTTL returns the stats cache TTL as a duration
func (c RedisConfig) StatsTTL() time.Duration {
	return time.Duration(c.StatsTTLSeconds) * time.Second
}

// ArchiveConfig holds S3 raw payload archival settings
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
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
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-east-1"
	}
	if cfg.Storage.CampaignTable == "" {
		cfg.Storage.CampaignTable = "EmailCampaigns"
	}
	if cfg.Storage.TrackingTable == "" {
		cfg.Storage.TrackingTable = "EmailTracking"
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = cfg.AWS.Region
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.Drip.SchedulerGroup == "" {
		cfg.Drip.SchedulerGroup = "default"
	}
	if cfg.Redis.StatsTTLSeconds == 0 {
		cfg.Redis.StatsTTLSeconds = 60
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("CAMPAIGN_TABLE"); v != "" {
		cfg.Storage.CampaignTable = v
	}
	if v := os.Getenv("TRACKING_TABLE"); v != "" {
		cfg.Storage.TrackingTable = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("SES_FROM_EMAIL"); v != "" {
		cfg.SES.FromEmail = v
	}
	if v := os.Getenv("SES_CONFIGURATION_SET"); v != "" {
		cfg.SES.ConfigurationSet = v
	}
	if v := os.Getenv("SQS_SEND_QUEUE_URL"); v != "" {
		cfg.Queues.SendQueueURL = v
	}
	if v := os.Getenv("SQS_SEND_QUEUE_ARN"); v != "" {
		cfg.Queues.SendQueueARN = v
	}
	if v := os.Getenv("SQS_FOLLOWUP_QUEUE_URL"); v != "" {
		cfg.Queues.FollowupQueueURL = v
	}
	if v := os.Getenv("SQS_FOLLOWUP_QUEUE_ARN"); v != "" {
		cfg.Queues.FollowupQueueARN = v
	}
	if v := os.Getenv("TRACKING_DOMAIN"); v != "" {
		cfg.Tracking.Domain = v
	}
	if v := os.Getenv("SCHEDULER_ROLE_ARN"); v != "" {
		cfg.Drip.SchedulerRoleARN = v
	}
	if v := os.Getenv("SCHEDULER_GROUP"); v != "" {
		cfg.Drip.SchedulerGroup = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
		cfg.Archive.Enabled = true
	}

	return cfg, nil
}
