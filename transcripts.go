package parley

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// Transcript is one speech recognition result of a streaming utterance.
type Transcript struct {
	Text  string `json:"text"`
	Final bool   `json:"final,omitempty"`
}

// ProcessTranscripts runs one turn from a stream of transcripts, delivered in the
// order the recognizer produced them. The first final transcript is used and the
// rest of the stream is ignored. If the stream closes without a final transcript the
// last partial one is used, and if it carried none the turn is a no-input turn.
//
// The producer must not block on an abandoned stream: buffer the channel or select
// on ctx.
func (e *Engine) ProcessTranscripts(ctx context.Context, req domain.TurnRequest, transcripts <-chan Transcript) (*domain.TurnResult, error) {
	text, err := collectUtterance(ctx, transcripts)
	if err != nil {
		return nil, err
	}
	req.Input = domain.TurnInput{Text: text, Language: req.Input.Language}
	return e.ProcessTurn(ctx, req)
}

func collectUtterance(ctx context.Context, transcripts <-chan Transcript) (string, error) {
	var last string
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case t, ok := <-transcripts:
			if !ok {
				return last, nil
			}
			if t.Final {
				return t.Text, nil
			}
			if t.Text != "" {
				last = t.Text
			}
		}
	}
}
