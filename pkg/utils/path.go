package utils

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateKey checks that an object key can be mirrored below a local
// directory. Keys use '/' as separator regardless of platform; empty keys,
// absolute keys and keys with a ".." segment are rejected.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	if strings.HasPrefix(key, "/") || filepath.IsAbs(filepath.FromSlash(key)) {
		return fmt.Errorf("absolute keys not allowed: %s", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return fmt.Errorf("key contains directory traversal: %s", key)
		}
	}
	return nil
}

// ValidateBucketName checks that a bucket name maps to exactly one directory
// component.
func ValidateBucketName(bucket string) error {
	if bucket == "" {
		return fmt.Errorf("bucket name cannot be empty")
	}
	if bucket == "." || bucket == ".." || strings.ContainsAny(bucket, `/\`) {
		return fmt.Errorf("invalid bucket name: %s", bucket)
	}
	return nil
}

// SecureJoin joins elements onto base and fails if the result escapes base.
//
//	path, err := SecureJoin(dataDir, bucket, filepath.FromSlash(key))
func SecureJoin(base string, elements ...string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("base path cannot be empty")
	}

	cleanBase := filepath.Clean(base)
	fullPath := filepath.Join(append([]string{cleanBase}, elements...)...)

	if fullPath != cleanBase && !strings.HasPrefix(fullPath, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes base directory %s", base)
	}
	return fullPath, nil
}

// MirrorPath returns the file below dataDir that mirrors bucket/key.
func MirrorPath(dataDir, bucket, key string) (string, error) {
	if err := ValidateBucketName(bucket); err != nil {
		return "", err
	}
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return SecureJoin(dataDir, bucket, filepath.FromSlash(key))
}
