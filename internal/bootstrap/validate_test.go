package bootstrap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateToken(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{
			name:     "scheme prefix is stripped",
			input:    "Bot abcdefghijklmnopqrstuvwxyzABCDEFGHIJK1234567890.XYZ",
			expected: "abcdefghijklmnopqrstuvwxyzABCDEFGHIJK1234567890.XYZ",
		},
		{
			name:     "surrounding whitespace is trimmed",
			input:    "  " + strings.Repeat("a", 25) + "-_." + strings.Repeat("B", 25) + "\n",
			expected: strings.Repeat("a", 25) + "-_." + strings.Repeat("B", 25),
		},
		{
			name:    "too short",
			input:   "short",
			wantErr: true,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "one below minimum",
			input:   strings.Repeat("a", MinTokenLength-1),
			wantErr: true,
		},
		{
			name:     "exactly minimum",
			input:    strings.Repeat("a", MinTokenLength),
			expected: strings.Repeat("a", MinTokenLength),
		},
		{
			name:    "forbidden characters",
			input:   strings.Repeat("a", MinTokenLength) + "$",
			wantErr: true,
		},
		{
			name:    "inner whitespace",
			input:   strings.Repeat("a", 30) + " " + strings.Repeat("b", 30),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateToken(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTokenFormat)
				assert.Empty(t, got)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
