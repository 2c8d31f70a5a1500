package config

import (
	"time"

	"github.com/IBM/sarama"
	"github.com/kelseyhightower/envconfig"
	"github.com/thoas/go-funk"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Queue    *queueConfig
	Service  *svcConfig
	Worker   *workerConfig
	LLM      *llmConfig
	Storage  *storageConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"extraction"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type queueConfig struct {
	Address   string `envconfig:"REDIS_ADDRESS" default:"localhost:6379"`
	Password  string `envconfig:"REDIS_PASSWORD" default:""`
	DB        int    `envconfig:"REDIS_DB" default:"0"`
	QueueName string `envconfig:"EXTRACTION_QUEUE_NAME" default:"extraction:jobs"`
}

type svcConfig struct {
	Address         string `envconfig:"EXTRACTION_ADDRESS" default:":8080"`
	BaseUrl         string `envconfig:"EXTRACTION_BASE_URL" default:"http://localhost:8080"`
	LogLevel        string `envconfig:"EXTRACTION_LOG_LEVEL" default:"info"`
	MigrationFolder string `envconfig:"EXTRACTION_MIGRATIONS_FOLDER" default:""`
	Kafka           kafkaConfig
}

type kafkaConfig struct {
	Brokers  []string `envconfig:"EXTRACTION_KAFKA_BROKERS" default:""`
	Topic    string   `envconfig:"EXTRACTION_KAFKA_TOPIC" default:""`
	Version  string   `envconfig:"EXTRACTION_KAFKA_VERSION" default:""`
	ClientID string   `envconfig:"EXTRACTION_KAFKA_CLIENT_ID" default:""`
}

// SaramaConfig builds the producer configuration from the env-provided
// fields. Version and ClientID are optional; an unparsable version is an
// error rather than a silent fallback.
func (k kafkaConfig) SaramaConfig() (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	if k.ClientID != "" {
		cfg.ClientID = k.ClientID
	}
	if k.Version != "" {
		version, err := sarama.ParseKafkaVersion(k.Version)
		if err != nil {
			return nil, err
		}
		cfg.Version = version
	}
	return cfg, nil
}

type workerConfig struct {
	MaxRetryAttempts  int           `envconfig:"EXTRACTION_MAX_RETRY_ATTEMPTS" default:"3"`
	RetryBaseDelay    time.Duration `envconfig:"EXTRACTION_RETRY_BASE_DELAY" default:"2s"`
	RetryMaxDelay     time.Duration `envconfig:"EXTRACTION_RETRY_MAX_DELAY" default:"30s"`
	DequeueTimeout    time.Duration `envconfig:"EXTRACTION_DEQUEUE_TIMEOUT" default:"5s"`
	StaleProcessing   time.Duration `envconfig:"EXTRACTION_STALE_PROCESSING" default:"30m"`
	SweepInterval     time.Duration `envconfig:"EXTRACTION_SWEEP_INTERVAL" default:"30s"`
	SweepGraceWindow  time.Duration `envconfig:"EXTRACTION_SWEEP_GRACE_WINDOW" default:"10s"`
	SweepBatchLimit   int           `envconfig:"EXTRACTION_SWEEP_BATCH_LIMIT" default:"5"`
	ChunkSize         int           `envconfig:"EXTRACTION_CHUNK_SIZE" default:"3000"`
	ChunkOverlap      int           `envconfig:"EXTRACTION_CHUNK_OVERLAP" default:"200"`
	MaxChunksPerFile  int           `envconfig:"EXTRACTION_MAX_CHUNKS_PER_FILE" default:"0"`
}

type llmConfig struct {
	BaseUrl     string        `envconfig:"LLM_BASE_URL" default:"https://api.openai.com/v1"`
	APIKey      string        `envconfig:"LLM_API_KEY" default:""`
	Model       string        `envconfig:"LLM_MODEL" default:"gpt-4o-mini"`
	Timeout     time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`
	MaxAttempts int           `envconfig:"LLM_MAX_ATTEMPTS" default:"3"`
}

type storageConfig struct {
	Type            string `envconfig:"STORAGE_TYPE" default:"local"`
	LocalRoot       string `envconfig:"STORAGE_LOCAL_ROOT" default:"/var/lib/extraction"`
	Endpoint        string `envconfig:"STORAGE_ENDPOINT" default:""`
	Bucket          string `envconfig:"STORAGE_BUCKET" default:"extraction"`
	AccessKey       string `envconfig:"STORAGE_ACCESS_KEY" default:""`
	SecretAccessKey string `envconfig:"STORAGE_SECRET_ACCESS_KEY" default:""`
	UseSSL          bool   `envconfig:"STORAGE_USE_SSL" default:"false"`
}

var legalStorageTypes = []string{"local", "s3"}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
		if err := singleConfig.Validate(); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault builds a config without touching the environment. Tests use it
// with an in-memory sqlite store.
func NewDefault() *Config {
	return &Config{
		Database: &dbConfig{Type: "sqlite", Name: "file::memory:?cache=shared"},
		Queue:    &queueConfig{Address: "localhost:6379", QueueName: "extraction:jobs"},
		Service:  &svcConfig{Address: ":8080", LogLevel: "info"},
		Worker: &workerConfig{
			MaxRetryAttempts: 3,
			RetryBaseDelay:   2 * time.Second,
			RetryMaxDelay:    30 * time.Second,
			DequeueTimeout:   5 * time.Second,
			StaleProcessing:  30 * time.Minute,
			SweepInterval:    30 * time.Second,
			SweepGraceWindow: 10 * time.Second,
			SweepBatchLimit:  5,
			ChunkSize:        3000,
			ChunkOverlap:     200,
		},
		LLM:     &llmConfig{BaseUrl: "https://api.openai.com/v1", Model: "gpt-4o-mini", Timeout: 60 * time.Second, MaxAttempts: 3},
		Storage: &storageConfig{Type: "local", LocalRoot: "/var/lib/extraction", Bucket: "extraction"},
	}
}

func (c *Config) Validate() error {
	if !funk.ContainsString(legalStorageTypes, c.Storage.Type) {
		return ErrInvalidStorageType
	}
	return nil
}
