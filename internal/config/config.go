package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/wb-go/wbf/zlog"
)

// Config holds the main configuration for the application.
type Config struct {
	Server    Server    `mapstructure:"server"`
	Worker    Worker    `mapstructure:"worker"`
	Thumbnail Thumbnail `mapstructure:"thumbnail"`
	Storage   Storage   `mapstructure:"storage"`
	Queue     Queue     `mapstructure:"queue"`
	Records   Records   `mapstructure:"records"`
	Retry     Retry     `mapstructure:"retry"`
}

// Server holds HTTP server-related configuration.
type Server struct {
	Enabled       bool   `mapstructure:"enabled"`
	HTTPPort      string `mapstructure:"http_port"`       // HTTP address to listen on
	MaxUploadSize int64  `mapstructure:"max_upload_size"` // bytes, 0 means unlimited
}

// Worker holds the consumer and per-job limits.
type Worker struct {
	Enabled      bool          `mapstructure:"enabled"`
	Concurrency  int           `mapstructure:"concurrency"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	StoreTimeout time.Duration `mapstructure:"store_timeout"`
	AckTimeout   time.Duration `mapstructure:"ack_timeout"`
}

// Thumbnail holds the transform parameters.
type Thumbnail struct {
	Width        int    `mapstructure:"width"`
	Height       int    `mapstructure:"height"`
	Mode         string `mapstructure:"mode"`   // fill or fit
	Engine       string `mapstructure:"engine"` // imaging or nfnt
	JPEGQuality  int    `mapstructure:"jpeg_quality"`
	MaxPixels    int64  `mapstructure:"max_pixels"` // larger sources are rejected before decoding
	Watermark    string `mapstructure:"watermark"`
	UploadPrefix string `mapstructure:"upload_prefix"`
	ThumbPrefix  string `mapstructure:"thumb_prefix"`
}

// Storage holds configuration for the object store backend.
type Storage struct {
	Backend    string `mapstructure:"backend"` // minio, s3 or memory
	Endpoint   string `mapstructure:"endpoint"`
	Region     string `mapstructure:"region"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	BucketName string `mapstructure:"bucket_name"`
	UseSSL     bool   `mapstructure:"use_ssl"`
}

// Queue holds configuration for the job queue backend.
type Queue struct {
	Backend       string `mapstructure:"backend"` // kafka, sqs or memory
	MaxDeliveries int    `mapstructure:"max_deliveries"`
	Kafka         Kafka  `mapstructure:"kafka"`
	SQS           SQS    `mapstructure:"sqs"`
}

// Kafka holds configuration for the Kafka message queue.
type Kafka struct {
	GroupID         string   `mapstructure:"group_id"` // Consumer group ID
	Topic           string   `mapstructure:"topic"`    // Kafka topic name
	DeadLetterTopic string   `mapstructure:"dead_letter_topic"`
	Brokers         []string `mapstructure:"brokers"` // List of Kafka broker addresses
}

// SQS holds configuration for the SQS queue.
type SQS struct {
	AWS               AWS           `mapstructure:",squash"`
	QueueURL          string        `mapstructure:"queue_url"`
	WaitTime          time.Duration `mapstructure:"wait_time"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	MaxMessages       int           `mapstructure:"max_messages"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
}

// AWS holds client settings shared by the AWS backends.
type AWS struct {
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// Records holds configuration for the status store and the audit log.
type Records struct {
	Backend  string   `mapstructure:"backend"` // postgres, dynamodb or memory
	Database Database `mapstructure:"database"`
	DynamoDB DynamoDB `mapstructure:"dynamodb"`
}

// Database holds database master and slave configuration.
type Database struct {
	Master DatabaseNode   `mapstructure:"master"`
	Slaves []DatabaseNode `mapstructure:"slaves"`
	// Migrate applies the embedded migrations at startup.
	Migrate bool `mapstructure:"migrate"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DatabaseNode holds connection parameters for a single database node.
type DatabaseNode struct {
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
	User    string `mapstructure:"user"`
	Pass    string `mapstructure:"pass"`
	Name    string `mapstructure:"name"`
	SSLMode string `mapstructure:"ssl_mode"`
}

// DynamoDB holds the table names and client settings.
type DynamoDB struct {
	AWS         AWS    `mapstructure:",squash"`
	StatusTable string `mapstructure:"status_table"`
	AuditTable  string `mapstructure:"audit_table"`
}

// Retry defines retry policy configuration.
type Retry struct {
	Attempts int           `mapstructure:"attempts"` // Number of retry attempts
	Delay    time.Duration `mapstructure:"delay"`    // Initial delay between retries
	Backoff  float64       `mapstructure:"backoff"`  // Backoff multiplier for delays
}

// DSN returns the PostgreSQL DSN string for connecting to this database node.
func (n DatabaseNode) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		n.User, n.Pass, n.Host, n.Port, n.Name, n.SSLMode,
	)
}

// Validate checks that every backend name is known and the required fields are set.
func (c *Config) Validate() error {
	if !c.Server.Enabled && !c.Worker.Enabled {
		return fmt.Errorf("at least one of server.enabled and worker.enabled must be set")
	}

	switch c.Storage.Backend {
	case "minio", "s3", "memory":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.BucketName == "" {
		return fmt.Errorf("storage.bucket_name is required")
	}

	switch c.Queue.Backend {
	case "kafka":
		if len(c.Queue.Kafka.Brokers) == 0 || c.Queue.Kafka.Topic == "" {
			return fmt.Errorf("queue.kafka.brokers and queue.kafka.topic are required")
		}
	case "sqs":
		if c.Queue.SQS.QueueURL == "" {
			return fmt.Errorf("queue.sqs.queue_url is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown queue backend %q", c.Queue.Backend)
	}

	switch c.Records.Backend {
	case "postgres", "memory":
	case "dynamodb":
		if c.Records.DynamoDB.StatusTable == "" || c.Records.DynamoDB.AuditTable == "" {
			return fmt.Errorf("records.dynamodb.status_table and records.dynamodb.audit_table are required")
		}
	default:
		return fmt.Errorf("unknown records backend %q", c.Records.Backend)
	}

	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1, got %d", c.Retry.Attempts)
	}

	return nil
}

// setDefaults registers the values used when neither the file nor the
// environment provides one.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.http_port", ":8080")
	v.SetDefault("server.max_upload_size", 20<<20)

	v.SetDefault("worker.enabled", true)
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.fetch_timeout", 30*time.Second)
	v.SetDefault("worker.store_timeout", 30*time.Second)
	v.SetDefault("worker.ack_timeout", 5*time.Second)

	v.SetDefault("thumbnail.width", 512)
	v.SetDefault("thumbnail.height", 512)
	v.SetDefault("thumbnail.mode", "fill")
	v.SetDefault("thumbnail.engine", "imaging")
	v.SetDefault("thumbnail.jpeg_quality", 85)
	v.SetDefault("thumbnail.max_pixels", 50_000_000)
	v.SetDefault("thumbnail.upload_prefix", "uploads/")
	v.SetDefault("thumbnail.thumb_prefix", "thumb/")

	v.SetDefault("storage.backend", "minio")
	v.SetDefault("queue.backend", "kafka")
	v.SetDefault("queue.max_deliveries", 5)
	v.SetDefault("queue.sqs.wait_time", 20*time.Second)
	v.SetDefault("queue.sqs.visibility_timeout", 2*time.Minute)
	v.SetDefault("queue.sqs.max_messages", 1)
	v.SetDefault("queue.sqs.retry_delay", 10*time.Second)
	v.SetDefault("records.backend", "postgres")

	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.delay", 200*time.Millisecond)
	v.SetDefault("retry.backoff", 2)
}

// bindEnv binds secrets and endpoints to their conventional environment variables.
func bindEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"records.database.master.host":  "DB_HOST",
		"records.database.master.port":  "DB_PORT",
		"records.database.master.user":  "DB_USER",
		"records.database.master.pass":  "DB_PASSWORD",
		"records.database.master.name":  "DB_NAME",
		"storage.access_key":            "STORAGE_ACCESS_KEY",
		"storage.secret_key":            "STORAGE_SECRET_KEY",
		"storage.bucket_name":           "BUCKET",
		"queue.sqs.queue_url":           "QUEUE_URL",
		"records.dynamodb.status_table": "STATUS_TABLE",
		"records.dynamodb.audit_table":  "AUDIT_TABLE",
	}

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	return nil
}

// Load reads the YAML file at path, overlays the environment and validates
// the result. Nested keys map to variables with dots replaced by
// underscores, e.g. QUEUE_BACKEND.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := bindEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads the configuration from the specified file path.
// It panics if the configuration file cannot be loaded or is invalid.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		zlog.Logger.Panic().Err(err).Msg("failed to load config")
	}

	return cfg
}
