package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config represents the entire application configuration
type Config struct {
	Env         string            `json:"env"`
	Port        int               `json:"port"`
	AppName     string            `json:"app_name"`
	MongoDB     MongoDBConfig     `json:"mongodb"`
	Redis       RedisConfig       `json:"redis"`
	RabbitMQ    RabbitMQConfig    `json:"rabbitmq"`
	Storage     StorageConfig     `json:"storage"`
	Extraction  ExtractionConfig  `json:"extraction"`
	Embedding   EmbeddingConfig   `json:"embedding"`
	VectorIndex VectorIndexConfig `json:"vector_index"`
	Pipeline    PipelineConfig    `json:"pipeline"`
	Trigger     TriggerConfig     `json:"trigger"`
	Logging     LoggingConfig     `json:"logging"`
	CORS        CORSConfig        `json:"cors"`
}

// MongoDBConfig contains MongoDB connection details
type MongoDBConfig struct {
	URI      string `json:"uri"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       string `json:"db"`
}

type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
	// StatusTTLSeconds bounds how stale a cached status response may be
	StatusTTLSeconds int `json:"status_ttl_seconds"`
}

// RabbitMQConfig contains connection details for the status event exchange
type RabbitMQConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	VHost    string `json:"vhost"`
	Exchange string `json:"exchange"`
}

// StorageConfig contains S3 connection details for uploads and batch staging
type StorageConfig struct {
	AccessKey     string `json:"access_key"`
	SecretKey     string `json:"secret_key"`
	Bucket        string `json:"bucket"`
	Region        string `json:"region"`
	StagingPrefix string `json:"staging_prefix"`
}

// ExtractionConfig contains the document extraction service connection details
type ExtractionConfig struct {
	BaseURL        string `json:"base_url"`
	APIKey         string `json:"api_key"`
	ProcessorRef   string `json:"processor_ref"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// EmbeddingConfig contains the embedding service connection details
type EmbeddingConfig struct {
	APIKey string `json:"api_key"`
	Model  string `json:"model"`
}

// VectorIndexConfig contains the pgvector index connection details
type VectorIndexConfig struct {
	DatabaseURL string `json:"database_url"`
	Table       string `json:"table"`
	Dimensions  int    `json:"dimensions"`
}

// PipelineConfig tunes the processing state machine
type PipelineConfig struct {
	MaxAttempts        int `json:"max_attempts"`
	RetryBaseDelayMs   int `json:"retry_base_delay_ms"`
	RetryMaxDelayMs    int `json:"retry_max_delay_ms"`
	BreakerMaxFailures int `json:"breaker_max_failures"`
	BreakerTimeoutMs   int `json:"breaker_timeout_ms"`
	ChunkSize          int `json:"chunk_size"`
	ChunkOverlap       int `json:"chunk_overlap"`
	BatchMaxAgeMinutes int `json:"batch_max_age_minutes"`
	ClaimLeaseSeconds  int `json:"claim_lease_seconds"`
}

// TriggerConfig guards the periodic processing endpoint
type TriggerConfig struct {
	Secret string `json:"secret"`
}

// LoggingConfig contains logging-related configurations
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age,omitempty"`
}

// LoadConfig reads configuration from the specified file path
func LoadConfig(filePath string) (*Config, error) {
	configData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(configData, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	applyDefaults(&config)

	return &config, nil
}

func applyDefaults(c *Config) {
	if c.Pipeline.MaxAttempts == 0 {
		c.Pipeline.MaxAttempts = 3
	}
	if c.Pipeline.RetryBaseDelayMs == 0 {
		c.Pipeline.RetryBaseDelayMs = 500
	}
	if c.Pipeline.RetryMaxDelayMs == 0 {
		c.Pipeline.RetryMaxDelayMs = 10000
	}
	if c.Pipeline.BreakerMaxFailures == 0 {
		c.Pipeline.BreakerMaxFailures = 3
	}
	if c.Pipeline.BreakerTimeoutMs == 0 {
		c.Pipeline.BreakerTimeoutMs = 60000
	}
	if c.Pipeline.ChunkSize == 0 {
		c.Pipeline.ChunkSize = 1200
	}
	if c.Pipeline.ChunkOverlap == 0 {
		c.Pipeline.ChunkOverlap = 150
	}
	if c.Pipeline.BatchMaxAgeMinutes == 0 {
		c.Pipeline.BatchMaxAgeMinutes = 120
	}
	if c.Pipeline.ClaimLeaseSeconds == 0 {
		c.Pipeline.ClaimLeaseSeconds = 30
	}
	if c.Redis.StatusTTLSeconds == 0 {
		c.Redis.StatusTTLSeconds = 2
	}
	if c.Extraction.TimeoutSeconds == 0 {
		c.Extraction.TimeoutSeconds = 60
	}
}
