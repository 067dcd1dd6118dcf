package runner

import (
	"strings"

	"github.com/aretw0/parley/pkg/domain"
)

// CommandKind classifies a line of user input.
type CommandKind int

const (
	// CommandTurn sends the input to the engine.
	CommandTurn CommandKind = iota
	// CommandReset discards the session.
	CommandReset
	// CommandExit leaves the loop.
	CommandExit
)

// Command is a parsed line of user input.
type Command struct {
	Kind  CommandKind
	Input domain.TurnInput
}

// ParseInput turns a line into a command. Unknown slash commands are sent as text.
func ParseInput(line string) Command {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "exit", "quit":
		return Command{Kind: CommandExit}
	case "/reset":
		return Command{Kind: CommandReset}
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	if arg != "" {
		switch name {
		case "/intent":
			return Command{Input: domain.TurnInput{Intent: arg}}
		case "/event":
			return Command{Input: domain.TurnInput{Event: arg}}
		case "/dtmf":
			return Command{Input: domain.TurnInput{DTMF: arg}}
		}
	}
	return Command{Input: domain.TurnInput{Text: line}}
}
