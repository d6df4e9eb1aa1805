package utils

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{key: "plain", wantErr: false},
		{key: "nested/dir/object.bin", wantErr: false},
		{key: "dots..inside", wantErr: false},
		{key: "./relative", wantErr: false},
		{key: "", wantErr: true},
		{key: "/absolute", wantErr: true},
		{key: "../escape", wantErr: true},
		{key: "a/../../b", wantErr: true},
		{key: "a/..", wantErr: true},
	}

	for _, tt := range tests {
		err := ValidateKey(tt.key)
		if tt.wantErr {
			assert.Error(t, err, tt.key)
		} else {
			assert.NoError(t, err, tt.key)
		}
	}
}

func TestValidateBucketName(t *testing.T) {
	assert.NoError(t, ValidateBucketName("test-bucket"))
	assert.Error(t, ValidateBucketName(""))
	assert.Error(t, ValidateBucketName(".."))
	assert.Error(t, ValidateBucketName("a/b"))
	assert.Error(t, ValidateBucketName(`a\b`))
}

func TestSecureJoin(t *testing.T) {
	base := t.TempDir()

	got, err := SecureJoin(base, "bucket", "key")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "bucket", "key"), got)

	got, err = SecureJoin(base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(base), got)

	_, err = SecureJoin(base, "..", "outside")
	assert.Error(t, err)

	_, err = SecureJoin("", "key")
	assert.Error(t, err)
}

func TestMirrorPath(t *testing.T) {
	base := t.TempDir()

	got, err := MirrorPath(base, "b", "dir/file")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "b", "dir", "file"), got)

	_, err = MirrorPath(base, "b", "../../etc/passwd")
	assert.Error(t, err)

	_, err = MirrorPath(base, "", "k")
	assert.Error(t, err)
}
