package s3

import (
	"time"
)

// Config represents object store connection and mirror configuration
type Config struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	ForcePathStyle  bool   `yaml:"force_path_style"`

	// Performance settings
	MaxRetries     int           `yaml:"max_retries"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Upload manager settings
	PartSize    int64 `yaml:"part_size"`   // bytes per multipart part
	Concurrency int   `yaml:"concurrency"` // part workers per upload

	// Local ground-truth mirror root; objects live at <data_dir>/<bucket>/<key>
	DataDir string `yaml:"data_dir"`
}

// NewDefaultConfig returns a configuration suited to a local Riak CS cluster
func NewDefaultConfig() *Config {
	return &Config{
		Endpoint:       "http://localhost:8080",
		Region:         "us-east-1",
		ForcePathStyle: true,
		MaxRetries:     3,
		RequestTimeout: 30 * time.Second,
		PartSize:       8 * 1024 * 1024,
		Concurrency:    5,
		DataDir:        "data",
	}
}
