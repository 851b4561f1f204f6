package config

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gopkg.in/yaml.v3"

	"github.com/shardkeep/shardkeep/pkg/collection"
	"github.com/shardkeep/shardkeep/pkg/log"
	"github.com/shardkeep/shardkeep/pkg/storage"
	"github.com/shardkeep/shardkeep/pkg/taskqueue"
)

// Config is shardkeepd's full configuration, loaded from YAML and/or
// flags (spec section 6.5, expanded with ambient logging, metrics, and
// task queue options).
type Config struct {
	RootPath           string `yaml:"rootPath"`
	MaxCachedShards    int    `yaml:"maxCachedShards"`
	MaxRecordsPerShard int    `yaml:"maxRecordsPerShard"`

	Storage    StorageConfig     `yaml:"storage"`
	Encryption EncryptionConfig  `yaml:"encryption"`
	TaskQueue  TaskQueueSettings `yaml:"taskQueue"`
	Log        LogConfig         `yaml:"log"`
	Metrics    MetricsConfig     `yaml:"metrics"`
}

// StorageConfig selects and parameterizes the Storage backend.
type StorageConfig struct {
	// Backend is one of "local", "bolt", "s3". Defaults to "local".
	Backend string `yaml:"backend"`
	// Path is the filesystem root (local) or the BoltDB file path (bolt).
	Path string   `yaml:"path"`
	S3   S3Config `yaml:"s3"`
}

// S3Config parameterizes the S3-compatible backend.
type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"` // non-empty selects a custom (S3-compatible) endpoint
}

// EncryptionConfig enables transparent encryption at the Storage
// layer (spec section 4.3/6.4). PublicKeyPath left empty disables
// encryption entirely.
type EncryptionConfig struct {
	PublicKeyPath string `yaml:"publicKeyPath"`
	// PrivateKeys maps a key label (storage.DefaultKeyLabel, "default",
	// is used for legacy headerless payloads) to a PEM-encoded RSA
	// private key file.
	PrivateKeys map[string]string `yaml:"privateKeys"`
}

// TaskQueueSettings tunes the background task queue (spec section 4.5).
type TaskQueueSettings struct {
	Workers        int `yaml:"workers"`
	TimeoutSeconds int `yaml:"timeoutSeconds"`
}

// LogConfig mirrors the teacher's log-level/log-json flags.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig controls the Prometheus HTTP exporter.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a Config with every field set to its documented
// default, rooted at the current directory.
func Default() *Config {
	return &Config{
		RootPath:           ".",
		MaxCachedShards:    64,
		MaxRecordsPerShard: 1000,
		Storage:            StorageConfig{Backend: "local"},
		TaskQueue:          TaskQueueSettings{Workers: 4, TimeoutSeconds: 600},
		Log:                LogConfig{Level: "info"},
		Metrics:            MetricsConfig{Addr: ":9090"},
	}
}

// Load reads and parses a YAML configuration file, filling in
// defaults for any field the file omits.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.RootPath == "" {
		c.RootPath = "."
	}
	if c.MaxCachedShards <= 0 {
		c.MaxCachedShards = 64
	}
	if c.MaxRecordsPerShard <= 0 {
		c.MaxRecordsPerShard = 1000
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "local"
	}
	if c.TaskQueue.Workers <= 0 {
		c.TaskQueue.Workers = 4
	}
	if c.TaskQueue.TimeoutSeconds <= 0 {
		c.TaskQueue.TimeoutSeconds = 600
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
}

// InitLogging wires pkg/log's global logger from the config's Log
// section (grounded on the teacher's cobra.OnInitialize(initLogging)
// pattern, carried here as an explicit call instead).
func (c *Config) InitLogging() {
	log.Init(log.Config{
		Level:      log.Level(c.Log.Level),
		JSONOutput: c.Log.JSON,
	})
}

// CollectionConfig returns the collection.Config this Config implies.
func (c *Config) CollectionConfig() collection.Config {
	return collection.Config{
		MaxCachedShards:    c.MaxCachedShards,
		MaxRecordsPerShard: c.MaxRecordsPerShard,
	}
}

// TaskQueueConfig returns the taskqueue.Config this Config implies.
func (c *Config) TaskQueueConfig() taskqueue.Config {
	return taskqueue.Config{
		Workers:        c.TaskQueue.Workers,
		DefaultTimeout: time.Duration(c.TaskQueue.TimeoutSeconds) * time.Second,
	}
}

// BuildStorage constructs the Storage backend named by c.Storage and,
// if c.Encryption.PublicKeyPath is set, wraps it with a transparent
// encrypting layer (spec section 4.3).
func (c *Config) BuildStorage(ctx context.Context) (storage.Storage, error) {
	var (
		base storage.Storage
		err  error
	)
	switch c.Storage.Backend {
	case "", "local":
		base, err = storage.NewLocalStorage(storagePath(c.RootPath, c.Storage.Path))
	case "bolt":
		base, err = storage.NewBoltStorage(storagePath(c.RootPath, c.Storage.Path))
	case "s3":
		base, err = c.buildS3Storage(ctx)
	default:
		return nil, fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("config: build %s storage: %w", c.Storage.Backend, err)
	}

	if c.Encryption.PublicKeyPath == "" {
		return base, nil
	}
	return c.wrapEncrypting(base)
}

func storagePath(root, sub string) string {
	if sub == "" {
		return root
	}
	return root + "/" + sub
}

func (c *Config) buildS3Storage(ctx context.Context) (storage.Storage, error) {
	if c.Storage.S3.Bucket == "" {
		return nil, fmt.Errorf("config: storage.s3.bucket is required for the s3 backend")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.Storage.S3.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if c.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Storage.S3.Endpoint)
			o.UsePathStyle = true
		}
	})
	return storage.NewS3Storage(client, c.Storage.S3.Bucket, c.Storage.S3.Prefix), nil
}

func (c *Config) wrapEncrypting(base storage.Storage) (storage.Storage, error) {
	pub, err := loadRSAPublicKey(c.Encryption.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load encryption public key: %w", err)
	}
	priv := make(map[string]*rsa.PrivateKey, len(c.Encryption.PrivateKeys))
	for label, path := range c.Encryption.PrivateKeys {
		key, err := loadRSAPrivateKey(path)
		if err != nil {
			return nil, fmt.Errorf("load private key %q: %w", label, err)
		}
		priv[label] = key
	}
	return storage.NewEncryptingStorage(base, pub, priv)
}

func loadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	generic, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	key, ok := generic.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%s does not contain an RSA public key", path)
	}
	return key, nil
}

func loadRSAPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	generic, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := generic.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s does not contain an RSA private key", path)
	}
	return key, nil
}
