package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
)

// JSONHandler implements the IOHandler interface for structured JSON-Lines communication.
//
// Each input line is either a JSON object shaped like domain.TurnInput, a JSON string,
// or raw text. Each turn result is written as one JSON line; system messages are
// written as {"system": "..."}.
type JSONHandler struct {
	Reader  *bufio.Reader
	Writer  io.Writer
	Encoder *json.Encoder

	mu sync.Mutex
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Writer:  w,
		Encoder: json.NewEncoder(w),
	}
}

func (h *JSONHandler) Output(ctx context.Context, res *domain.TurnResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Encoder.Encode(res)
}

// Input reads one line. Structured inputs are re-encoded as the equivalent command
// so the runner parses every mode the same way.
func (h *JSONHandler) Input(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := h.Reader.ReadString('\n')
	if err != nil && (err != io.EOF || strings.TrimSpace(text) == "") {
		return "", err
	}
	text = strings.TrimSpace(text)

	var val string
	if err := json.Unmarshal([]byte(text), &val); err == nil {
		return SanitizeInput(val)
	}

	if strings.HasPrefix(text, "{") {
		var in domain.TurnInput
		dec := json.NewDecoder(bytes.NewReader([]byte(text)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&in); err == nil {
			return commandFor(in), nil
		}
	}

	return SanitizeInput(text)
}

func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Encoder.Encode(map[string]string{"system": msg})
}

func commandFor(in domain.TurnInput) string {
	switch {
	case in.Intent != "":
		return "/intent " + in.Intent
	case in.Event != "":
		return "/event " + in.Event
	case in.DTMF != "":
		return "/dtmf " + in.DTMF
	}
	clean, err := SanitizeInput(in.Text)
	if err != nil {
		return ""
	}
	return clean
}
