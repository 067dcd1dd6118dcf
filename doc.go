/*
Package parley is a deterministic turn-resolution engine for conversational agents.

An agent is a set of flows; each flow is a graph of pages. A page may collect a form of
parameters, and routes and event handlers move the session between pages while
fulfillments emit messages, set parameters and call webhooks. Given the same session
state and input, a turn always resolves the same way.

# Concept

The engine owns turn resolution. The host owns I/O: it supplies an AgentLoader, a
StateStore for sessions, a Matcher that interprets free text and a WebhookInvoker for
external fulfillment. Every collaborator has a default, so an agent file is enough to
get started.

# Usage

	loader := file.NewLoader("./agent.yaml")
	eng, err := parley.New(loader)
	if err != nil {
		log.Fatal(err)
	}

	res, err := eng.ProcessTurn(ctx, domain.TurnRequest{
		SessionID: "session-123",
		Input:     domain.TurnInput{Text: "I want a large pizza"},
	})
	if err != nil {
		log.Printf("turn failed: %v", err)
	}
	for _, text := range res.Texts() {
		fmt.Println(text)
	}

Callers that need to inspect the interpretation before committing side effects use
MatchOnly followed by FulfillMatch with one of the returned matches.
*/
package parley
