package config

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/internal/avroio"
	"gopkg.in/yaml.v3"
)

// StorageConfig selects where the table lives.
type StorageConfig struct {
	Kind string   `yaml:"kind"` // "local" or "s3"
	Path string   `yaml:"path"` // table root for local storage
	S3   S3Config `yaml:"s3"`
}

// S3Config holds object store settings, used if kind is "s3".
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// BucketConfig holds bucketing options of the table.
type BucketConfig struct {
	Count int32 `yaml:"count"`
	// Check makes scans fail on files written with a different bucket count.
	Check bool `yaml:"check"`
}

// ManifestConfig holds manifest compaction and format options.
type ManifestConfig struct {
	TargetFileSizeBytes          int64  `yaml:"target_file_size_bytes"`
	MergeMinCount                int    `yaml:"merge_min_count"`
	FullCompactionThresholdBytes int64  `yaml:"full_compaction_threshold_bytes"`
	FormatCompression            string `yaml:"format_compression"` // zstd, snappy, deflate, none
}

// ScanConfig holds scan planning options.
type ScanConfig struct {
	ManifestParallelism   int `yaml:"manifest_parallelism"` // 0 means GOMAXPROCS
	ManifestCacheCapacity int `yaml:"manifest_cache_capacity"`
}

// SnapshotConfig holds the snapshot retention policy.
type SnapshotConfig struct {
	NumRetainedMin int    `yaml:"num_retained_min"`
	NumRetainedMax int    `yaml:"num_retained_max"`
	TimeRetained   string `yaml:"time_retained"`
}

// IndexConfig holds index file options.
type IndexConfig struct {
	Compression string `yaml:"compression"` // none, snappy, lz4, zstd
}

// PartitionConfig holds partition path options.
type PartitionConfig struct {
	DefaultName string `yaml:"default_name"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // e.g., "debug", "info", "warn", "error"
	Output string `yaml:"output"` // e.g., "stdout", "stderr", "file", "none"
	File   string `yaml:"file"`   // Path to the log file, used if output is "file"
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // e.g., "localhost:4317" for gRPC OTLP collector
	Protocol string `yaml:"protocol"` // "grpc" or "http"
}

// Config is the top-level configuration struct.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Bucket    BucketConfig    `yaml:"bucket"`
	Manifest  ManifestConfig  `yaml:"manifest"`
	Scan      ScanConfig      `yaml:"scan"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Index     IndexConfig     `yaml:"index"`
	Partition PartitionConfig `yaml:"partition"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ParseDuration parses a duration string. Returns the default duration if the string is empty or invalid.
// Logs a warning if the string is invalid but not empty.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Kind: "local",
			Path: "./table",
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Bucket: BucketConfig{
			Count: 1,
			Check: true,
		},
		Manifest: ManifestConfig{
			TargetFileSizeBytes:          8 * 1024 * 1024, // 8 MiB
			MergeMinCount:                30,
			FullCompactionThresholdBytes: 16 * 1024 * 1024, // 16 MiB
			FormatCompression:            "zstd",
		},
		Scan: ScanConfig{
			ManifestParallelism:   0,
			ManifestCacheCapacity: 1024,
		},
		Snapshot: SnapshotConfig{
			NumRetainedMin: 10,
			NumRetainedMax: math.MaxInt32,
			TimeRetained:   "1h",
		},
		Index: IndexConfig{
			Compression: "lz4",
		},
		Partition: PartitionConfig{
			DefaultName: "__DEFAULT_PARTITION__",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			File:   "lakemeta.log",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
			Protocol: "grpc",
		},
	}
}

// Validate checks the values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch c.Storage.Kind {
	case "local":
		if c.Storage.Path == "" {
			return &core.ValidationError{Field: "storage.path", Value: "", Message: "a table path is required for local storage"}
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return &core.ValidationError{Field: "storage.s3.bucket", Value: "", Message: "a bucket is required for s3 storage"}
		}
	default:
		return &core.ValidationError{Field: "storage.kind", Value: c.Storage.Kind, Message: "must be local or s3"}
	}
	if _, err := avroio.ParseCodec(c.Manifest.FormatCompression); err != nil {
		return fmt.Errorf("invalid manifest section: %w", err)
	}
	if _, err := core.ParseCompressionType(c.Index.Compression); err != nil {
		return fmt.Errorf("invalid index section: %w", err)
	}
	if c.Snapshot.NumRetainedMin < 1 {
		return &core.ValidationError{Field: "snapshot.num_retained_min", Value: fmt.Sprint(c.Snapshot.NumRetainedMin), Message: "must be at least 1"}
	}
	if c.Snapshot.NumRetainedMax < c.Snapshot.NumRetainedMin {
		return &core.ValidationError{Field: "snapshot.num_retained_max", Value: fmt.Sprint(c.Snapshot.NumRetainedMax), Message: "must not be smaller than num_retained_min"}
	}
	return nil
}

// Load reads configuration from an io.Reader.
// This is the core logic, separated for testability.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()

	// If the reader is nil, it's like an empty file, return defaults.
	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}

	// Unmarshal YAML into the config struct, overwriting defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads configuration from a YAML file by path.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// If file doesn't exist, return default config by calling Load with a nil reader.
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}
