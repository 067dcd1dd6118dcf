/*
Package ports defines the driven ports (interfaces) for the Parley engine.

These interfaces decouple the turn runtime from external implementations, allowing
the engine to work with various storage backends, agent sources, matchers and webhooks.

# Key Interfaces

  - AgentLoader: Loads the read-only agent definition (e.g., from a YAML file or memory).
  - Matcher: Classifies user input into intents and parameters.
  - WebhookInvoker: Calls external fulfillment webhooks.
  - StateStore: Responsible for persisting and loading session State.
  - DistributedLocker: Provides distributed locking for handling concurrent session access.
  - TurnEngine: The caller-facing turn API consumed by transport adapters.
*/
package ports
