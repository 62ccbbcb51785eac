package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker-a:9092,broker-b:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"broker-a:9092", "broker-b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "imageflow.image-events", cfg.Kafka.EventsTopic)
	assert.Equal(t, 5, cfg.Consumer.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Consumer.BatchWindow)
	assert.Equal(t, 1, cfg.Redrive.MaxReceiveCount)
	assert.Equal(t, "images", cfg.Catalog.Table)
	assert.Equal(t, 3*time.Second, cfg.Mail.Timeout)
}

func TestMailConfig_Validate(t *testing.T) {
	err := MailConfig{}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SES_EMAIL_FROM")
	assert.Contains(t, err.Error(), "SES_EMAIL_TO")
	assert.Contains(t, err.Error(), "SES_REGION")

	cfg := MailConfig{From: "noreply@example.com", To: "uploads@example.com", Region: "eu-west-1"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "email-smtp.eu-west-1.amazonaws.com", cfg.Host())

	cfg = MailConfig{From: "noreply@example.com", To: "uploads@example.com", SMTPHost: "localhost"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "localhost", cfg.Host())
}

func TestCatalogConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     CatalogConfig
		wantErr string
	}{
		{"memory", CatalogConfig{Driver: "memory", Table: "images", OpTimeout: time.Second}, ""},
		{"postgres without dsn", CatalogConfig{Driver: "postgres", Table: "images", OpTimeout: time.Second}, "CATALOG_DSN"},
		{"postgres", CatalogConfig{Driver: "postgres", DSN: "postgres://localhost/db", Table: "images", OpTimeout: time.Second}, ""},
		{"unknown driver", CatalogConfig{Driver: "dynamo", Table: "images", OpTimeout: time.Second}, "unsupported"},
		{"no table", CatalogConfig{Driver: "memory", OpTimeout: time.Second}, "IMAGE_TABLE_NAME"},
		{"no timeout", CatalogConfig{Driver: "memory", Table: "images"}, "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRedriveConfig_Validate(t *testing.T) {
	assert.NoError(t, RedriveConfig{MaxReceiveCount: 1}.Validate())
	assert.Error(t, RedriveConfig{MaxReceiveCount: 0}.Validate())
}
