package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/parley/pkg/domain"
)

func TestTextHandler_Output(t *testing.T) {
	var out bytes.Buffer
	h := NewTextHandler(strings.NewReader(""), &out,
		WithTextHandlerRenderer(func(s string) (string, error) { return "**" + s + "**", nil }),
		WithTextHandlerDebug(true),
	)

	res := &domain.TurnResult{
		Messages: []domain.ResponseMessage{
			domain.TextResponse("Hi"),
			{Payload: map[string]any{"card": "menu"}},
			{LiveAgentHandoff: &domain.LiveAgentHandoff{}},
		},
		Flow:  "main",
		Page:  "home",
		Match: domain.Match{Type: domain.MatchIntent, Intent: "greet", Confidence: 0.9},
	}
	require.NoError(t, h.Output(context.Background(), res))

	got := out.String()
	assert.Contains(t, got, "**Hi**\n")
	assert.Contains(t, got, `[Payload] {"card":"menu"}`)
	assert.Contains(t, got, "[Handoff]")
	assert.Contains(t, got, "intent=greet confidence=0.90 page=main/home")
}

func TestTextHandler_Input(t *testing.T) {
	var out bytes.Buffer
	big := strings.Repeat("x", DefaultMaxInputSize+1)
	h := NewTextHandler(strings.NewReader(big+"\n  hello \n"), &out)

	line, err := h.Input(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", line, "oversized lines are rejected and reread")
	assert.Contains(t, out.String(), "Error:")

	_, err = h.Input(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestTextHandler_InputHonoursContext(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	h := NewTextHandler(r, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.Input(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	// The pending line is delivered to the next call.
	go func() { _, _ = w.Write([]byte("late\n")) }()
	line, err := h.Input(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "late", line)
}

func TestJSONHandler_Input(t *testing.T) {
	lines := strings.Join([]string{
		`{"text":"hi there"}`,
		`{"event":"WELCOME"}`,
		`{"dtmf":"42"}`,
		`"quoted"`,
		`raw words`,
		`{"unknown":1}`,
	}, "\n")
	h := NewJSONHandler(strings.NewReader(lines), io.Discard)

	for _, want := range []string{"hi there", "/event WELCOME", "/dtmf 42", "quoted", "raw words", `{"unknown":1}`} {
		got, err := h.Input(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := h.Input(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}
