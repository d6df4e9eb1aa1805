package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/objectfs/s3harness/internal/storage/s3"
	"github.com/objectfs/s3harness/pkg/errors"
	"github.com/objectfs/s3harness/pkg/utils"
)

// Configuration represents the complete harness configuration
type Configuration struct {
	Global  GlobalConfig  `yaml:"global"`
	Store   s3.Config     `yaml:"store"`
	Harness HarnessConfig `yaml:"harness"`
	Cluster ClusterConfig `yaml:"cluster"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// GlobalConfig represents process-wide settings
type GlobalConfig struct {
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	LogFile       string `yaml:"log_file"`
	LogMaxSizeMB  int64  `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
}

// HarnessConfig represents workload settings for the CLI commands
type HarnessConfig struct {
	DefaultBucket    string        `yaml:"default_bucket"`
	RandomObjectSize string        `yaml:"random_object_size"` // \d+[KMG]?
	SoakReadRatio    int           `yaml:"soak_read_ratio"`    // reads per write
	SoakDuration     time.Duration `yaml:"soak_duration"`      // 0 runs until interrupted
	ValidateInterval time.Duration `yaml:"validate_interval"`
}

// ClusterConfig represents how the cluster under test is observed and driven
type ClusterConfig struct {
	StatsURL         string        `yaml:"stats_url"`
	StatsCommand     []string      `yaml:"stats_command"`
	DockerHost       string        `yaml:"docker_host"`
	NodeImage        string        `yaml:"node_image"`
	NodeNamePrefix   string        `yaml:"node_name_prefix"`
	JoinInterval     time.Duration `yaml:"join_interval"`
	ConvergeInterval time.Duration `yaml:"converge_interval"`
	SettleDelay      time.Duration `yaml:"settle_delay"`
	RebalanceTimeout time.Duration `yaml:"rebalance_timeout"` // 0 waits until interrupted
	StatsTimeout     time.Duration `yaml:"stats_timeout"`
	StatusAttempts   int           `yaml:"status_attempts"` // tries per stats read, 1 disables retries
	AddNodeCommand   []string      `yaml:"add_node_command"`
	AdminCommand     []string      `yaml:"admin_command"` // prefix for `s3harness admin`
}

// MetricsConfig represents the prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LegacyCredentials is the config.json format used by older harness setups.
type LegacyCredentials struct {
	URL         string `json:"url"`
	AdminKey    string `json:"admin_key"`
	AdminSecret string `json:"admin_secret"`
}

// NewDefault returns a configuration for a local Riak CS cluster in Docker.
func NewDefault() *Configuration {
	store := s3.NewDefaultConfig()
	store.DataDir = "test_data"

	return &Configuration{
		Global: GlobalConfig{
			LogLevel:      "INFO",
			LogFormat:     utils.LogFormatText,
			LogMaxSizeMB:  100,
			LogMaxBackups: 5,
		},
		Store: *store,
		Harness: HarnessConfig{
			DefaultBucket:    "default",
			RandomObjectSize: "1M",
			SoakReadRatio:    4,
			ValidateInterval: 30 * time.Second,
		},
		Cluster: ClusterConfig{
			StatsURL:         "http://localhost:8098/stats",
			NodeImage:        "hectcastro/riak-cs",
			NodeNamePrefix:   "riak-cs",
			JoinInterval:     10 * time.Second,
			ConvergeInterval: 5 * time.Second,
			SettleDelay:      5 * time.Second,
			StatsTimeout:     10 * time.Second,
			StatusAttempts:   1,
			AddNodeCommand:   []string{"./bin/add_node.sh"},
			AdminCommand:     []string{"./bin/ssh_command.sh", "riak-admin"},
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return loadError("read config file", filename, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return loadError("parse config file", filename, err)
	}

	return nil
}

// LoadCredentialsJSON applies a legacy config.json with the store URL and
// admin key pair.
func (c *Configuration) LoadCredentialsJSON(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return loadError("read credentials file", filename, err)
	}

	var creds LegacyCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return loadError("parse credentials file", filename, err)
	}

	if creds.URL != "" {
		c.Store.Endpoint = creds.URL
	}
	if creds.AdminKey != "" {
		c.Store.AccessKeyID = creds.AdminKey
	}
	if creds.AdminSecret != "" {
		c.Store.SecretAccessKey = creds.AdminSecret
	}
	return nil
}

// LoadFromEnv applies S3HARNESS_* environment overrides. Values that fail to
// parse are reported rather than silently ignored.
func (c *Configuration) LoadFromEnv() error {
	var problems []string
	str := func(name string, dst *string) {
		if val := os.Getenv(name); val != "" {
			*dst = val
		}
	}
	integer := func(name string, dst *int) {
		if val := os.Getenv(name); val != "" {
			n, err := strconv.Atoi(val)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s=%q", name, val))
				return
			}
			*dst = n
		}
	}
	duration := func(name string, dst *time.Duration) {
		if val := os.Getenv(name); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s=%q", name, val))
				return
			}
			*dst = d
		}
	}
	boolean := func(name string, dst *bool) {
		if val := os.Getenv(name); val != "" {
			*dst = strings.ToLower(val) == "true"
		}
	}

	// Global settings
	str("S3HARNESS_LOG_LEVEL", &c.Global.LogLevel)
	str("S3HARNESS_LOG_FORMAT", &c.Global.LogFormat)
	str("S3HARNESS_LOG_FILE", &c.Global.LogFile)

	// Store settings
	str("S3HARNESS_ENDPOINT", &c.Store.Endpoint)
	str("S3HARNESS_REGION", &c.Store.Region)
	str("S3HARNESS_ACCESS_KEY_ID", &c.Store.AccessKeyID)
	str("S3HARNESS_SECRET_ACCESS_KEY", &c.Store.SecretAccessKey)
	str("S3HARNESS_DATA_DIR", &c.Store.DataDir)
	boolean("S3HARNESS_FORCE_PATH_STYLE", &c.Store.ForcePathStyle)
	integer("S3HARNESS_MAX_RETRIES", &c.Store.MaxRetries)
	integer("S3HARNESS_CONCURRENCY", &c.Store.Concurrency)
	duration("S3HARNESS_REQUEST_TIMEOUT", &c.Store.RequestTimeout)
	if val := os.Getenv("S3HARNESS_PART_SIZE"); val != "" {
		size, err := utils.ParseBytes(val)
		if err != nil {
			problems = append(problems, fmt.Sprintf("S3HARNESS_PART_SIZE=%q", val))
		} else {
			c.Store.PartSize = size
		}
	}

	// Harness settings
	str("S3HARNESS_DEFAULT_BUCKET", &c.Harness.DefaultBucket)
	str("S3HARNESS_RANDOM_OBJECT_SIZE", &c.Harness.RandomObjectSize)

	// Cluster settings
	str("S3HARNESS_STATS_URL", &c.Cluster.StatsURL)
	str("S3HARNESS_DOCKER_HOST", &c.Cluster.DockerHost)
	str("S3HARNESS_NODE_IMAGE", &c.Cluster.NodeImage)
	duration("S3HARNESS_REBALANCE_TIMEOUT", &c.Cluster.RebalanceTimeout)

	// Metrics settings
	boolean("S3HARNESS_METRICS_ENABLED", &c.Metrics.Enabled)
	integer("S3HARNESS_METRICS_PORT", &c.Metrics.Port)

	if len(problems) > 0 {
		return errors.NewError(errors.ErrCodeInvalidConfig, "invalid environment override").
			WithComponent("config").
			WithOperation("load_env").
			WithDetail("variables", problems)
	}
	return nil
}

// SaveToFile saves configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if _, err := utils.ParseLogLevel(c.Global.LogLevel); err != nil {
		return validationError("global.log_level", err.Error())
	}
	switch strings.ToLower(c.Global.LogFormat) {
	case utils.LogFormatText, utils.LogFormatJSON, "":
	default:
		return validationError("global.log_format", "must be text or json")
	}

	if c.Store.Endpoint == "" {
		return validationError("store.endpoint", "is required")
	}
	if c.Store.DataDir == "" {
		return validationError("store.data_dir", "is required")
	}
	if c.Store.Concurrency <= 0 {
		return validationError("store.concurrency", "must be greater than 0")
	}
	if c.Store.PartSize < 0 {
		return validationError("store.part_size", "must not be negative")
	}
	if c.Store.MaxRetries < 0 {
		return validationError("store.max_retries", "must not be negative")
	}

	if err := utils.ValidateBucketName(c.Harness.DefaultBucket); err != nil {
		return validationError("harness.default_bucket", err.Error())
	}
	if _, err := utils.ParseBytes(c.Harness.RandomObjectSize); err != nil {
		return validationError("harness.random_object_size", err.Error())
	}
	if c.Harness.SoakReadRatio < 0 {
		return validationError("harness.soak_read_ratio", "must not be negative")
	}

	if c.Cluster.StatsURL == "" && len(c.Cluster.StatsCommand) == 0 {
		return validationError("cluster.stats_url", "either stats_url or stats_command is required")
	}
	if c.Cluster.JoinInterval <= 0 || c.Cluster.ConvergeInterval <= 0 {
		return validationError("cluster.join_interval", "poll intervals must be positive")
	}
	if c.Cluster.StatusAttempts < 0 {
		return validationError("cluster.status_attempts", "must not be negative")
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return validationError("metrics.port", fmt.Sprintf("invalid port %d", c.Metrics.Port))
	}

	return nil
}

func validationError(field, msg string) error {
	return errors.NewError(errors.ErrCodeConfigValidation, fmt.Sprintf("%s %s", field, msg)).
		WithComponent("config").
		WithOperation("validate").
		WithContext("field", field)
}

func loadError(op, filename string, err error) error {
	return errors.NewError(errors.ErrCodeConfigLoad, "failed to "+op).
		WithComponent("config").
		WithOperation("load").
		WithContext("file", filename).
		WithCause(err)
}
