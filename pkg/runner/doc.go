/*
Package runner implements the interactive conversation loop for a parley engine.

It bridges the engine and a terminal or a pipe: it reads user input through a pluggable
IOHandler, runs one turn per line and presents the agent's messages. Input that arrives
too late becomes a no-input turn, and OS signals end the loop gracefully.

# Key Components

  - Runner: the loop driving ports.TurnEngine.
  - IOHandler: decouples how input is read and results are shown.
  - TextHandler: interactive CLI usage with optional markdown rendering.
  - JSONHandler: JSON-Lines for programmatic hosts.

# Usage

	r := runner.NewRunner(eng,
		runner.WithSessionID("user-1"),
		runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
	)

	if err := r.Run(ctx); err != nil {
		log.Fatal(err)
	}

# Commands

The loop understands a few commands in place of free text:

	/intent <name>   trigger an intent directly
	/event <name>    raise a custom event
	/dtmf <digits>   send keypad input
	/reset           discard the session
	exit, quit       leave the loop
*/
package runner
