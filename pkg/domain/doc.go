/*
Package domain contains the core domain models of the Parley turn engine.

It defines the read-only agent definition (flows, pages, forms, fulfillments,
routes and handlers) and the mutable per-session State that the runtime advances
one turn at a time. This package is kept pure and free of external dependencies
like I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - Agent: Immutable container of Flows, Intents, EntityTypes and Webhooks.
  - Flow / Page: The conversation graph. A session is always on exactly one page of one flow.
  - Fulfillment: Messages, parameter actions, conditional cases and an optional webhook call.
  - TransitionRoute / EventHandler: Rules that move the session to a Target.
  - State: Captures the runtime snapshot of a session (flow, page, parameters, counters, return stack).
  - Match: The interpretation of one turn's input.
*/
package domain
