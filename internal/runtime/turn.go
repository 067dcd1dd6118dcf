package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/parley/pkg/domain"
)

// turn carries the mutable context of a single ProcessTurn call.
type turn struct {
	engine *Engine
	ctx    context.Context
	agent  *domain.Agent
	state  *domain.State
	input  domain.TurnInput
	match  domain.Match

	messages []domain.ResponseMessage
	diag     domain.Diagnostics
	closed   bool

	transitions  int
	webhookCalls int
	// recovering is set while a webhook failure or invalid-parameter handler runs.
	recovering bool
	// failed records webhooks that already failed in this turn.
	failed map[string]bool
}

func (t *turn) page() *domain.Page {
	p, _ := t.agent.Page(t.state.Flow, t.state.Page)
	return p
}

func (t *turn) flow() *domain.Flow {
	f, _ := t.agent.Flow(t.state.Flow)
	return f
}

// run drives one turn: direct triggers, form filling, transition resolution, flow return.
func (t *turn) run() error {
	var decision *Decision

	// Direct triggers win over form filling.
	switch {
	case t.match.IsEvent():
		decision = t.resolveEvent(t.match.Event)
	case t.match.HasIntent():
		decision = t.resolveIntentTiers()
	}

	if decision == nil && !t.match.IsEvent() && !formComplete(t.page().Form, t.state.Parameters) {
		fill := advanceForm(t.page().Form, t.state, t.match)
		switch fill.Outcome {
		case FillAwaitingInput:
			return t.prompt(fill)
		case FillRedirected:
			t.recordFired(fill.decision(t.state))
			return t.follow(fill.Handler.TriggerFulfillment, fill.Handler.Target)
		}
	}

	if decision == nil {
		var err error
		decision, err = t.resolveWithReturn()
		if err != nil {
			return err
		}
	}

	if decision == nil {
		decision = t.builtinEvent()
	}
	if decision == nil {
		t.engine.logger.Debug("No route matched",
			"session_id", t.state.SessionID, "flow", t.state.Flow, "page", t.state.Page, "match", t.match.Type)
		return nil
	}

	if decision.Intent != "" {
		t.commitIntentParameters()
	}
	t.recordFired(decision)
	return t.follow(decision.Fulfillment, decision.Target)
}

// commitIntentParameters stores the values extracted with the matched intent, so the
// route's fulfillment and the target page's form see them.
func (t *turn) commitIntentParameters() {
	for name, v := range t.match.Parameters {
		if isEmptyValue(v) {
			continue
		}
		t.state.Parameters[name] = v
		delete(t.state.Counters, name)
	}
}

// resolveWithReturn resolves the match on the active page and, while nothing matches an
// intent or event, pops the flow return stack and offers the same match to the caller.
func (t *turn) resolveWithReturn() (*Decision, error) {
	for {
		if d := t.resolve(); d != nil {
			return d, nil
		}
		carry := t.match.HasIntent() || t.match.IsEvent()
		if !carry || len(t.state.ReturnStack) == 0 {
			return nil, nil
		}
		frame := t.popFrame()
		entered := ""
		if frame.PendingMatch != nil {
			entered = frame.PendingMatch.Intent + frame.PendingMatch.Event
		}
		t.engine.logger.Debug("Returning to calling flow",
			"session_id", t.state.SessionID, "flow", frame.Flow, "page", frame.Page,
			"entered_with", entered, "offered", t.match.Intent+t.match.Event)
		if err := t.moveTo(frame.Flow, frame.Page); err != nil {
			return nil, err
		}
	}
}

// builtinEvent raises sys.no-match-default / sys.no-input-default for unhandled turns.
func (t *turn) builtinEvent() *Decision {
	switch t.match.Type {
	case domain.MatchNoMatch:
		return t.resolveEvent(domain.EventNoMatchDefault)
	case domain.MatchNoInput:
		return t.resolveEvent(domain.EventNoInputDefault)
	}
	return nil
}

// prompt executes a form prompt without transitioning.
func (t *turn) prompt(fill FillResult) error {
	if fill.Handler != nil {
		t.recordFired(fill.decision(t.state))
		return t.follow(fill.Handler.TriggerFulfillment, fill.Handler.Target)
	}
	if fill.Param == nil {
		return nil
	}
	return t.follow(fill.Param.FillBehavior.InitialPrompt, domain.Target{})
}

// follow executes a fulfillment and then moves to its target, honouring webhook outcomes.
func (t *turn) follow(f *domain.Fulfillment, target domain.Target) error {
	out, err := t.execute(f)
	if err != nil {
		return err
	}
	return t.afterFulfillment(out, target)
}

func (t *turn) afterFulfillment(out fulfillmentOutcome, target domain.Target) error {
	if handled, err := t.applyOutcome(out); handled || err != nil {
		return err
	}
	return t.transitionTo(target)
}

// applyOutcome handles webhook failures, invalidated parameters and target overrides.
// It reports true when one of them took over the rest of the turn.
func (t *turn) applyOutcome(out fulfillmentOutcome) (bool, error) {
	if out.webhookErr != nil {
		handled, err := t.handleWebhookError(out.webhookErr)
		if handled || err != nil {
			return true, err
		}
	}
	if len(out.invalid) > 0 {
		handled, err := t.invalidate(out.invalid)
		if handled || err != nil {
			return true, err
		}
	}
	if !out.target.IsZero() {
		return true, t.transitionTo(out.target)
	}
	return false, nil
}

// handleWebhookError routes a failure to sys.webhook-timeout / sys.webhook-error,
// page before flow. It reports false when no handler exists.
func (t *turn) handleWebhookError(we *domain.WebhookError) (bool, error) {
	t.diag.Errors = append(t.diag.Errors, we.Error())

	var d *Decision
	if we.Kind == domain.WebhookTimeout {
		d = t.resolveEvent(domain.EventWebhookTimeout)
	}
	if d == nil {
		d = t.resolveEvent(domain.EventWebhookError)
	}
	if d == nil {
		t.engine.logger.Warn("Webhook failed without handler, continuing",
			"session_id", t.state.SessionID, "page", t.state.Page, "webhook", we.Webhook, "err", we)
		return false, nil
	}

	t.recordFired(d)
	out, err := t.executeRecovering(d.Fulfillment)
	if err != nil {
		return true, err
	}
	return true, t.afterFulfillment(out, d.Target)
}

// invalidate clears parameters a webhook rejected and re-prompts the first one that
// belongs to the active form. It reports false when none of them are form parameters.
func (t *turn) invalidate(names []string) (bool, error) {
	for _, name := range names {
		delete(t.state.Parameters, name)
	}

	form := t.page().Form
	if form == nil {
		return false, nil
	}
	for i := range form.Parameters {
		p := &form.Parameters[i]
		if !contains(names, p.Name) {
			continue
		}
		if h, ok := p.FillBehavior.Handler(domain.EventInvalidParameter); ok {
			t.recordFired(&Decision{Kind: domain.RuleReprompt, Event: h.Event, Name: h.Name,
				Flow: t.state.Flow, Page: t.state.Page, Target: h.Target})
			out, err := t.executeRecovering(h.TriggerFulfillment)
			if err != nil {
				return true, err
			}
			return true, t.afterFulfillment(out, h.Target)
		}
		out, err := t.executeRecovering(p.FillBehavior.InitialPrompt)
		if err != nil {
			return true, err
		}
		return true, t.afterFulfillment(out, domain.Target{})
	}
	return false, nil
}

func (t *turn) executeRecovering(f *domain.Fulfillment) (fulfillmentOutcome, error) {
	prev := t.recovering
	t.recovering = true
	defer func() { t.recovering = prev }()
	return t.execute(f)
}

// transitionTo applies a target.
func (t *turn) transitionTo(target domain.Target) error {
	switch {
	case t.closed, target.IsZero():
		return nil
	case target.EndsSession():
		t.end()
		return nil
	case target.IsFlow():
		start, ok := t.agent.StartPage(target.ID())
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrFlowNotFound, target.ID())
		}
		return t.enterFlow(target.ID(), start.ID)
	}

	switch target.ID() {
	case domain.PageEndFlow:
		return t.endFlow()
	case domain.PageCurrent:
		return t.enterPage(t.state.Flow, t.state.Page)
	case domain.PageStart:
		start, _ := t.agent.StartPage(t.state.Flow)
		return t.enterPage(t.state.Flow, start.ID)
	}

	flowID, ok := t.agent.FlowOf(target.ID())
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrPageNotFound, target.ID())
	}
	if flowID != t.state.Flow {
		return t.enterFlow(flowID, target.ID())
	}
	return t.enterPage(flowID, target.ID())
}

// enterFlow performs a sub-flow call, or unwinds when the flow is already on the stack.
func (t *turn) enterFlow(flowID, pageID string) error {
	if idx := t.state.InStack(flowID); idx >= 0 {
		t.state.ReturnStack = t.state.ReturnStack[:idx]
		return t.enterPage(flowID, pageID)
	}
	if flowID != t.state.Flow {
		pending := t.match.Clone()
		t.state.ReturnStack = append(t.state.ReturnStack, domain.ReturnFrame{
			Flow:         t.state.Flow,
			Page:         t.state.Page,
			PendingMatch: &pending,
		})
		if n := len(t.state.ReturnStack); n > domain.MaxReturnStack {
			dropped := t.state.ReturnStack[0]
			t.state.ReturnStack = append([]domain.ReturnFrame(nil), t.state.ReturnStack[n-domain.MaxReturnStack:]...)
			t.engine.logger.Warn("Flow return stack full, dropping oldest frame",
				"session_id", t.state.SessionID, "flow", dropped.Flow, "page", dropped.Page)
		}
	}
	return t.enterPage(flowID, pageID)
}

// endFlow returns to the calling flow's page, or closes the session at the root flow.
func (t *turn) endFlow() error {
	if len(t.state.ReturnStack) == 0 {
		t.end()
		return nil
	}
	frame := t.popFrame()
	if err := t.moveTo(frame.Flow, frame.Page); err != nil {
		return err
	}
	return t.settle()
}

func (t *turn) popFrame() domain.ReturnFrame {
	n := len(t.state.ReturnStack)
	frame := t.state.ReturnStack[n-1]
	t.state.ReturnStack = t.state.ReturnStack[:n-1]
	return frame
}

func (t *turn) end() {
	t.closed = true
	t.engine.emitPageLeave(t.ctx, t.state)
}

// moveTo repositions the session without running the page's entry fulfillment.
func (t *turn) moveTo(flowID, pageID string) error {
	if _, ok := t.agent.Page(flowID, pageID); !ok {
		return fmt.Errorf("%w: %s/%s", domain.ErrPageNotFound, flowID, pageID)
	}
	t.transitions++
	if t.transitions > t.engine.maxTransitions {
		return fmt.Errorf("%w: more than %d page transitions", domain.ErrTransitionLimit, t.engine.maxTransitions)
	}

	t.engine.emitPageLeave(t.ctx, t.state)
	t.diag.Transitions = append(t.diag.Transitions, domain.PageTransition{
		FromFlow: t.state.Flow, FromPage: t.state.Page, ToFlow: flowID, ToPage: pageID,
	})
	t.state.Flow = flowID
	t.state.Page = pageID
	t.state.Counters = make(map[string]domain.ParamCounters)
	t.engine.emitPageEnter(t.ctx, t.state)
	return nil
}

// enterPage moves to the page, runs its entry fulfillment and settles it.
func (t *turn) enterPage(flowID, pageID string) error {
	if err := t.moveTo(flowID, pageID); err != nil {
		return err
	}
	page := t.page()
	applyDefaults(page.Form, t.state.Parameters)

	if !page.EntryFulfillment.IsEmpty() {
		out, err := t.execute(page.EntryFulfillment)
		if err != nil {
			return err
		}
		if handled, err := t.applyOutcome(out); handled || err != nil {
			return err
		}
	}
	return t.settle()
}

// settle prompts for the first missing required parameter, or lets a complete page
// auto-advance through its condition routes.
func (t *turn) settle() error {
	if t.closed {
		return nil
	}
	page := t.page()
	if p := nextRequired(page.Form, t.state.Parameters); p != nil {
		return t.follow(p.FillBehavior.InitialPrompt, domain.Target{})
	}
	d := t.resolveConditionTiers()
	if d == nil {
		return nil
	}
	t.recordFired(d)
	return t.follow(d.Fulfillment, d.Target)
}

func (t *turn) recordFired(d *Decision) {
	if d == nil {
		return
	}
	t.diag.Fired = append(t.diag.Fired, domain.FiredRule{
		Kind:   d.Kind,
		Name:   d.Name,
		Flow:   d.Flow,
		Page:   d.Page,
		Tier:   d.Tier,
		Intent: d.Intent,
		Event:  d.Event,
		Target: d.Target.String(),
	})
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
