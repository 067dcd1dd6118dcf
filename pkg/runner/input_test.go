package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aretw0/parley/pkg/domain"
)

func TestParseInput(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"hello", Command{Input: domain.TurnInput{Text: "hello"}}},
		{"  hello  ", Command{Input: domain.TurnInput{Text: "hello"}}},
		{"", Command{Input: domain.TurnInput{}}},
		{"exit", Command{Kind: CommandExit}},
		{"QUIT", Command{Kind: CommandExit}},
		{"/reset", Command{Kind: CommandReset}},
		{"/intent order", Command{Input: domain.TurnInput{Intent: "order"}}},
		{"/event WELCOME", Command{Input: domain.TurnInput{Event: "WELCOME"}}},
		{"/dtmf 12#", Command{Input: domain.TurnInput{DTMF: "12#"}}},
		{"/intent", Command{Input: domain.TurnInput{Text: "/intent"}}},
		{"/unknown thing", Command{Input: domain.TurnInput{Text: "/unknown thing"}}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseInput(tt.line))
		})
	}
}
