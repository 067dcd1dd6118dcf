package runner

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxInputSize bounds a single utterance, in bytes.
const DefaultMaxInputSize = 4096

// EnvMaxInputSize overrides DefaultMaxInputSize for the process.
const EnvMaxInputSize = "PARLEY_MAX_INPUT_SIZE"

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
)

// configuredLimit takes precedence over the environment when positive.
var configuredLimit atomic.Int64

// SetMaxInputSize fixes the utterance limit for every surface (chat, HTTP, MCP).
// Zero falls back to EnvMaxInputSize, then DefaultMaxInputSize.
func SetMaxInputSize(n int) {
	configuredLimit.Store(int64(n))
}

// MaxInputSize reports the limit currently enforced by SanitizeInput.
func MaxInputSize() int {
	if n := configuredLimit.Load(); n > 0 {
		return int(n)
	}
	if n, err := strconv.Atoi(os.Getenv(EnvMaxInputSize)); err == nil && n > 0 {
		return n
	}
	return DefaultMaxInputSize
}

// SanitizeInput prepares raw user text for matching. Oversized or malformed input is
// rejected, never truncated, so a turn always sees exactly what the user sent. Terminal
// control sequences are dropped; line breaks and tabs survive.
func SanitizeInput(input string) (string, error) {
	if limit := MaxInputSize(); len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}
	if strings.IndexFunc(input, unwanted) < 0 {
		return input, nil
	}
	return strings.Map(func(r rune) rune {
		if unwanted(r) {
			return -1
		}
		return r
	}, input), nil
}

func unwanted(r rune) bool {
	switch r {
	case '\n', '\t', '\r':
		return false
	}
	return unicode.IsControl(r)
}
