package dsl

import (
	"fmt"
	"time"

	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
)

// Common targets.
var (
	// Stay keeps the session on the current page.
	Stay = domain.Target{}
	// EndSession closes the session.
	EndSession = domain.PageTarget(domain.PageEndSession)
	// EndFlow returns to the calling flow.
	EndFlow = domain.PageTarget(domain.PageEndFlow)
)

// ToPage targets a page.
func ToPage(id string) domain.Target { return domain.PageTarget(id) }

// ToFlow targets a flow.
func ToFlow(id string) domain.Target { return domain.FlowTarget(id) }

// Say builds a fulfillment emitting one text message per argument.
func Say(texts ...string) *domain.Fulfillment {
	if len(texts) == 0 {
		return nil
	}
	f := &domain.Fulfillment{}
	for _, t := range texts {
		f.Messages = append(f.Messages, domain.TextResponse(t))
	}
	return f
}

// Builder manages the agent construction.
type Builder struct {
	agent    domain.Agent
	flows    []*FlowBuilder
	entities []*EntityBuilder
}

// New creates a new agent builder.
func New(id string) *Builder {
	return &Builder{agent: domain.Agent{ID: id}}
}

// StartFlow sets the flow new sessions begin in. Defaults to the first flow added.
func (b *Builder) StartFlow(id string) *Builder {
	b.agent.StartFlow = id
	return b
}

// Threshold sets the classification threshold.
func (b *Builder) Threshold(v float64) *Builder {
	b.agent.ClassificationThreshold = v
	return b
}

// Intent declares an intent with its training phrases.
func (b *Builder) Intent(id string, phrases ...string) *IntentBuilder {
	b.agent.Intents = append(b.agent.Intents, domain.Intent{ID: id, TrainingPhrases: phrases})
	return &IntentBuilder{b: b, idx: len(b.agent.Intents) - 1}
}

// Entity declares an entity type.
func (b *Builder) Entity(id string) *EntityBuilder {
	eb := &EntityBuilder{et: domain.EntityType{ID: id}}
	b.entities = append(b.entities, eb)
	return eb
}

// Webhook declares a webhook. A zero timeout uses the engine default.
func (b *Builder) Webhook(id, url string, timeout time.Duration) *Builder {
	b.agent.Webhooks = append(b.agent.Webhooks, domain.Webhook{ID: id, URL: url, Timeout: timeout})
	return b
}

// Flow creates a flow, or returns the existing builder for id.
func (b *Builder) Flow(id string) *FlowBuilder {
	for _, fb := range b.flows {
		if fb.flow.ID == id {
			return fb
		}
	}
	fb := &FlowBuilder{flow: domain.Flow{ID: id}}
	b.flows = append(b.flows, fb)
	return fb
}

// Agent assembles the definition without validating it.
func (b *Builder) Agent() *domain.Agent {
	agent := b.agent
	agent.Intents = append([]domain.Intent(nil), b.agent.Intents...)
	agent.Flows = make([]domain.Flow, 0, len(b.flows))
	for _, fb := range b.flows {
		agent.Flows = append(agent.Flows, fb.build())
	}
	for _, eb := range b.entities {
		agent.EntityTypes = append(agent.EntityTypes, eb.et)
	}
	return &agent
}

// Build validates the agent and wraps it in a memory loader.
func (b *Builder) Build() (*memory.Loader, error) {
	agent := b.Agent()
	if err := agent.Prepare(); err != nil {
		return nil, fmt.Errorf("failed to build agent: %w", err)
	}
	return memory.NewLoader(agent), nil
}

// IntentBuilder configures an intent.
type IntentBuilder struct {
	b   *Builder
	idx int
}

// Param declares a parameter extracted with the intent.
func (ib *IntentBuilder) Param(id, entityType string) *IntentBuilder {
	in := &ib.b.agent.Intents[ib.idx]
	in.Parameters = append(in.Parameters, domain.IntentParameter{ID: id, EntityType: entityType})
	return ib
}

// ListParam declares a list parameter extracted with the intent.
func (ib *IntentBuilder) ListParam(id, entityType string) *IntentBuilder {
	in := &ib.b.agent.Intents[ib.idx]
	in.Parameters = append(in.Parameters, domain.IntentParameter{ID: id, EntityType: entityType, IsList: true})
	return ib
}

// EntityBuilder configures an entity type.
type EntityBuilder struct {
	et domain.EntityType
}

// Value adds a canonical value and its synonyms.
func (eb *EntityBuilder) Value(value string, synonyms ...string) *EntityBuilder {
	eb.et.Entities = append(eb.et.Entities, domain.Entity{Value: value, Synonyms: synonyms})
	return eb
}
