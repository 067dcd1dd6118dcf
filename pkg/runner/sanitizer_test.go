package runner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain utterance", "a large pizza please", "a large pizza please"},
		{"keeps line breaks and tabs", "two\nlarge\tpizzas", "two\nlarge\tpizzas"},
		{"drops escape sequences", "\x1b[1mlarge\x1b[0m", "[1mlarge[0m"},
		{"drops NUL and BEL", "si\x00ze\x07", "size"},
		{"dtmf digits untouched", "1#2*", "1#2*"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeInput(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeInput_Limit(t *testing.T) {
	_, err := SanitizeInput(strings.Repeat("x", DefaultMaxInputSize))
	assert.NoError(t, err)

	_, err = SanitizeInput(strings.Repeat("x", DefaultMaxInputSize+1))
	assert.ErrorIs(t, err, ErrInputTooLarge)
}

func TestMaxInputSize_Precedence(t *testing.T) {
	assert.Equal(t, DefaultMaxInputSize, MaxInputSize())

	t.Setenv(EnvMaxInputSize, "10")
	assert.Equal(t, 10, MaxInputSize())
	_, err := SanitizeInput("hello world")
	assert.ErrorIs(t, err, ErrInputTooLarge)

	SetMaxInputSize(64)
	t.Cleanup(func() { SetMaxInputSize(0) })
	assert.Equal(t, 64, MaxInputSize())
	_, err = SanitizeInput("hello world")
	assert.NoError(t, err)

	t.Setenv(EnvMaxInputSize, "not-a-number")
	SetMaxInputSize(0)
	assert.Equal(t, DefaultMaxInputSize, MaxInputSize())
}

func TestSanitizeInput_InvalidUTF8(t *testing.T) {
	_, err := SanitizeInput("size \xbd\xb2")
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}
