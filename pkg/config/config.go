package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config captures the full runtime configuration for an imageflow process.
type Config struct {
	App      AppConfig
	HTTP     HTTPConfig
	Kafka    KafkaConfig
	Consumer ConsumerConfig
	Redrive  RedriveConfig
	Storage  StorageConfig
	Catalog  CatalogConfig
	Mail     MailConfig
	Tracing  TracingConfig
}

type AppConfig struct {
	Name        string `env:"APP_NAME" envDefault:"imageflow"`
	Environment string `env:"APP_ENV" envDefault:"development"`
	Version     string `env:"APP_VERSION" envDefault:"0.1.0"`
	LogLevel    string `env:"APP_LOG_LEVEL" envDefault:"info"`
}

// HTTPConfig configures the ops endpoint (health and readiness probes).
type HTTPConfig struct {
	Addr         string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"10s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
}

type KafkaConfig struct {
	Brokers                []string      `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	EventsTopic            string        `env:"KAFKA_EVENTS_TOPIC" envDefault:"imageflow.image-events"`
	ProcessingRetryTopic   string        `env:"KAFKA_PROCESSING_RETRY_TOPIC" envDefault:"imageflow.processing.retry"`
	DeadLetterTopic        string        `env:"KAFKA_DEAD_LETTER_TOPIC" envDefault:"imageflow.processing.dlq"`
	MetadataRetryTopic     string        `env:"KAFKA_METADATA_RETRY_TOPIC" envDefault:"imageflow.metadata.retry"`
	ConfirmationRetryTopic string        `env:"KAFKA_CONFIRMATION_RETRY_TOPIC" envDefault:"imageflow.confirmation.retry"`
	ProcessingGroup        string        `env:"KAFKA_PROCESSING_GROUP" envDefault:"imageflow-processing"`
	MetadataGroup          string        `env:"KAFKA_METADATA_GROUP" envDefault:"imageflow-metadata"`
	ConfirmationGroup      string        `env:"KAFKA_CONFIRMATION_GROUP" envDefault:"imageflow-confirmation"`
	RejectionGroup         string        `env:"KAFKA_REJECTION_GROUP" envDefault:"imageflow-rejection"`
	Retries                int           `env:"KAFKA_RETRIES" envDefault:"3"`
	CompressionCodec       string        `env:"KAFKA_COMPRESSION_CODEC" envDefault:"snappy"`
	BatchSize              int           `env:"KAFKA_BATCH_SIZE" envDefault:"100"`
	BatchTimeout           time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"50ms"`
	PublishTimeout         time.Duration `env:"KAFKA_PUBLISH_TIMEOUT" envDefault:"10s"`
}

// ConsumerConfig mirrors the batching behaviour of a queue event source.
type ConsumerConfig struct {
	BatchSize   int           `env:"CONSUMER_BATCH_SIZE" envDefault:"5"`
	BatchWindow time.Duration `env:"CONSUMER_BATCH_WINDOW" envDefault:"5s"`
}

// RedriveConfig bounds the number of deliveries before a message is dead-lettered.
type RedriveConfig struct {
	MaxReceiveCount int `env:"REDRIVE_MAX_RECEIVE_COUNT" envDefault:"1"`
}

type StorageConfig struct {
	Provider  string `env:"STORAGE_PROVIDER" envDefault:"minio"`
	Endpoint  string `env:"STORAGE_ENDPOINT" envDefault:"localhost:9000"`
	Region    string `env:"STORAGE_REGION" envDefault:"us-east-1"`
	Bucket    string `env:"STORAGE_BUCKET" envDefault:"images"`
	AccessKey string `env:"STORAGE_ACCESS_KEY" envDefault:"minioadmin"`
	SecretKey string `env:"STORAGE_SECRET_KEY" envDefault:"minioadmin"`
	UseSSL    bool   `env:"STORAGE_USE_SSL" envDefault:"false"`
}

type CatalogConfig struct {
	Driver      string        `env:"CATALOG_DRIVER" envDefault:"postgres"`
	DSN         string        `env:"CATALOG_DSN"`
	Table       string        `env:"IMAGE_TABLE_NAME" envDefault:"images"`
	AutoMigrate bool          `env:"CATALOG_AUTO_MIGRATE" envDefault:"true"`
	OpTimeout   time.Duration `env:"CATALOG_OP_TIMEOUT" envDefault:"5s"`
	MaxConns    int32         `env:"CATALOG_MAX_CONNS" envDefault:"10"`
}

// MailConfig holds the fixed sender/recipient identities and the SMTP transport.
// When SMTPHost is empty the regional SES SMTP endpoint is used.
type MailConfig struct {
	From     string        `env:"SES_EMAIL_FROM"`
	To       string        `env:"SES_EMAIL_TO"`
	Region   string        `env:"SES_REGION"`
	SMTPHost string        `env:"MAIL_SMTP_HOST"`
	SMTPPort int           `env:"MAIL_SMTP_PORT" envDefault:"587"`
	Username string        `env:"MAIL_SMTP_USERNAME"`
	Password string        `env:"MAIL_SMTP_PASSWORD"`
	Timeout  time.Duration `env:"MAIL_SEND_TIMEOUT" envDefault:"3s"`
}

type TracingConfig struct {
	Endpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	SampleRatio  float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1.0"`
	ResourceAttr string  `env:"OTEL_RESOURCE_ATTRIBUTES" envDefault:"service.namespace=imageflow"`
}

// Load parses environment variables into Config. A .env file in the working
// directory is applied first if present; variables already set win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports missing settings required by the notifier processes.
func (c MailConfig) Validate() error {
	var missing []string
	if strings.TrimSpace(c.From) == "" {
		missing = append(missing, "SES_EMAIL_FROM")
	}
	if strings.TrimSpace(c.To) == "" {
		missing = append(missing, "SES_EMAIL_TO")
	}
	if strings.TrimSpace(c.Region) == "" && strings.TrimSpace(c.SMTPHost) == "" {
		missing = append(missing, "SES_REGION")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing mail configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Host returns the SMTP host to dial.
func (c MailConfig) Host() string {
	if c.SMTPHost != "" {
		return c.SMTPHost
	}
	return fmt.Sprintf("email-smtp.%s.amazonaws.com", c.Region)
}

// Validate reports missing settings required by processes that touch the catalog.
func (c CatalogConfig) Validate() error {
	switch c.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.DSN) == "" {
			return errors.New("missing catalog configuration: CATALOG_DSN")
		}
	default:
		return fmt.Errorf("unsupported catalog driver: %s", c.Driver)
	}
	if strings.TrimSpace(c.Table) == "" {
		return errors.New("missing catalog configuration: IMAGE_TABLE_NAME")
	}
	if c.OpTimeout <= 0 {
		return errors.New("catalog operation timeout must be positive")
	}
	return nil
}

// Validate checks the redrive budget.
func (c RedriveConfig) Validate() error {
	if c.MaxReceiveCount < 1 {
		return fmt.Errorf("redrive max receive count must be at least 1, got %d", c.MaxReceiveCount)
	}
	return nil
}
