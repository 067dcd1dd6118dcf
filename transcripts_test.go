package parley_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/domain"
)

func stream(items ...parley.Transcript) <-chan parley.Transcript {
	ch := make(chan parley.Transcript, len(items))
	for _, it := range items {
		ch <- it
	}
	close(ch)
	return ch
}

func TestProcessTranscripts(t *testing.T) {
	tests := []struct {
		name  string
		items []parley.Transcript
		match domain.MatchType
		page  string
	}{
		{
			name:  "first final wins",
			items: []parley.Transcript{{Text: "order"}, {Text: "order a pizza", Final: true}, {Text: "cancel", Final: true}},
			match: domain.MatchIntent,
			page:  "size",
		},
		{
			name:  "last partial without final",
			items: []parley.Transcript{{Text: "i want"}, {Text: "i want a pizza"}, {Text: ""}},
			match: domain.MatchIntent,
			page:  "size",
		},
		{
			name:  "empty stream is no-input",
			match: domain.MatchNoInput,
			page:  "welcome",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, _ := newEngine(t)
			res, err := eng.ProcessTranscripts(context.Background(), domain.TurnRequest{SessionID: "s1"}, stream(tt.items...))
			require.NoError(t, err)
			assert.Equal(t, tt.match, res.Match.Type)
			assert.Equal(t, tt.page, res.Page)
		})
	}
}

func TestProcessTranscripts_Cancelled(t *testing.T) {
	eng, _ := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	open := make(chan parley.Transcript)
	_, err := eng.ProcessTranscripts(ctx, domain.TurnRequest{SessionID: "s1"}, open)
	assert.ErrorIs(t, err, context.Canceled)
}
