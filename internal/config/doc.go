/*
Package config provides configuration management for the harness.

Sources are applied in order, later ones winning:

	┌─────────────────────────────────────────────┐
	│          Command line flags                 │ ← Highest Priority
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│        Environment Variables                │
	│           (S3HARNESS_*)                     │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│   Legacy config.json credentials file       │
	│     {url, admin_key, admin_secret}          │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration file (YAML)           │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values                    │ ← Lowest Priority
	└─────────────────────────────────────────────┘

# Configuration Structure

	global:   log level, format and optional rotated log file
	store:    S3 endpoint, credentials, upload part size and mirror data_dir
	harness:  default bucket, random object size, soak and validate loop settings
	cluster:  ring stats source, Docker host and node image, poll intervals
	metrics:  prometheus endpoint

# Usage

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("s3harness.yaml"); err != nil {
		return err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

Validation failures are *errors.HarnessError values with code CONFIG_VALIDATION
and the offending field in their context.
*/
package config
