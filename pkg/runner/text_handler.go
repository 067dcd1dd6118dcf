package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
)

// TextHandler talks to a person over a line-oriented terminal or pipe.
type TextHandler struct {
	Reader   *bufio.Reader
	Writer   io.Writer
	Renderer ContentRenderer

	// Debug prints the match and the page after every turn.
	Debug bool

	lines     chan line
	startOnce sync.Once
}

type line struct {
	text string
	err  error
}

// TextHandlerOption configures a TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer renders text messages (markdown on a TTY) before printing.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// WithTextHandlerDebug prints turn diagnostics after the messages.
func WithTextHandlerDebug(debug bool) TextHandlerOption {
	return func(h *TextHandler) {
		h.Debug = debug
	}
}

// NewTextHandler reads from r and writes to w, defaulting to stdin and stdout.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{
		Reader: bufio.NewReader(r),
		Writer: w,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// startReading moves the blocking reads to a goroutine so Input can honour ctx.
// The goroutine ends with the reader.
func (h *TextHandler) startReading() {
	h.startOnce.Do(func() {
		h.lines = make(chan line)
		go func() {
			defer close(h.lines)
			for {
				text, err := h.Reader.ReadString('\n')
				if text != "" {
					h.lines <- line{text: text}
				}
				if err == io.EOF {
					return
				}
				if err != nil {
					h.lines <- line{err: err}
					return
				}
			}
		}()
	})
}

// Output prints the messages of a turn, one per line.
func (h *TextHandler) Output(ctx context.Context, res *domain.TurnResult) error {
	for _, m := range res.Messages {
		switch {
		case m.Text != nil:
			output := m.PlainText()
			if h.Renderer != nil {
				if rendered, err := h.Renderer(output); err == nil {
					output = rendered
				}
			}
			fmt.Fprintln(h.Writer, strings.TrimSpace(output))
		case m.Payload != nil:
			data, err := json.Marshal(m.Payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(h.Writer, "[Payload] %s\n", data)
		case m.LiveAgentHandoff != nil:
			fmt.Fprintln(h.Writer, "[Handoff] transferring to a live agent")
		}
	}
	if h.Debug {
		fmt.Fprintf(h.Writer, "[Debug] match=%s", res.Match.Type)
		if res.Match.Intent != "" {
			fmt.Fprintf(h.Writer, " intent=%s confidence=%.2f", res.Match.Intent, res.Match.Confidence)
		}
		fmt.Fprintf(h.Writer, " page=%s/%s", res.Flow, res.Page)
		if len(res.Diagnostics.ParameterDelta) > 0 {
			data, _ := json.Marshal(res.Diagnostics.ParameterDelta)
			fmt.Fprintf(h.Writer, " delta=%s", data)
		}
		fmt.Fprintln(h.Writer)
	}
	return nil
}

func (h *TextHandler) Input(ctx context.Context) (string, error) {
	h.startReading()

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fmt.Fprint(h.Writer, "> ")

		var in line
		var ok bool
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case in, ok = <-h.lines:
		}
		if !ok {
			return "", io.EOF
		}
		if in.err != nil {
			return "", in.err
		}
		clean, err := SanitizeInput(strings.TrimSpace(in.text))
		if err != nil {
			fmt.Fprintf(h.Writer, "Error: %v. Please try again.\n", err)
			continue
		}
		return clean, nil
	}
}

func (h *TextHandler) SystemOutput(ctx context.Context, msg string) error {
	_, err := fmt.Fprintf(h.Writer, "[System] %s\n", msg)
	return err
}
