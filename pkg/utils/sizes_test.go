package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBytes(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{input: "0", want: 0},
		{input: "1", want: 1},
		{input: "100", want: 100},
		{input: "1K", want: 1024},
		{input: "10K", want: 10 * 1024},
		{input: "5M", want: 5 * 1024 * 1024},
		{input: "2G", want: 2 * 1024 * 1024 * 1024},
		{input: "", wantErr: true},
		{input: "K", wantErr: true},
		{input: "10k", wantErr: true},
		{input: "1.5M", wantErr: true},
		{input: "10KB", wantErr: true},
		{input: "10T", wantErr: true},
		{input: " 10", wantErr: true},
		{input: "-1", wantErr: true},
		{input: "99999999999999999999", wantErr: true},
		{input: "9999999999G", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseBytes(tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		assert.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.input))
	}
}
