package runtime

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/aretw0/parley/internal/condition"
	"github.com/aretw0/parley/pkg/domain"
)

var sessionRef = regexp.MustCompile(`\$session\.params\.([A-Za-z_][\w-]*(?:\.[A-Za-z_][\w-]*)*)`)

// caseItem is a unit of pending work while resolving conditional cases: either a set of
// cases still to be decided or a message ready to emit.
type caseItem struct {
	cases *domain.ConditionalCases
	msg   *domain.ResponseMessage
	depth int
}

// resolveCases walks conditional cases depth-first, emitting the content of every winning
// case in document order. All conditions see the same parameter snapshot. Nesting deeper
// than maxCaseDepth aborts with ErrMalformedFulfillment.
func (t *turn) resolveCases(list []domain.ConditionalCases) error {
	if len(list) == 0 {
		return nil
	}
	scope := t.snapshot()

	stack := make([]caseItem, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		stack = append(stack, caseItem{cases: &list[i], depth: 1})
	}

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if item.msg != nil {
			t.emit(*item.msg)
			continue
		}
		if item.depth > maxCaseDepth {
			return fmt.Errorf("%w: conditional cases nested deeper than %d", domain.ErrMalformedFulfillment, maxCaseDepth)
		}

		winner := t.firstCase(item.cases, scope)
		if winner == nil {
			continue
		}
		t.applyActions(winner.SetParameterActions)

		for i := len(winner.CaseContent) - 1; i >= 0; i-- {
			c := &winner.CaseContent[i]
			switch {
			case c.Message != nil:
				stack = append(stack, caseItem{msg: c.Message, depth: item.depth})
			case c.AdditionalCases != nil:
				stack = append(stack, caseItem{cases: c.AdditionalCases, depth: item.depth + 1})
			}
		}
	}
	return nil
}

func (t *turn) firstCase(cc *domain.ConditionalCases, scope condition.Scope) *domain.Case {
	for i := range cc.Cases {
		c := &cc.Cases[i]
		if t.holds(c.Condition, scope) {
			return c
		}
	}
	return nil
}

// snapshot returns a condition scope detached from later parameter writes.
func (t *turn) snapshot() condition.Scope {
	s := t.scope()
	s.Session = domain.CloneParams(s.Session)
	return s
}

func (t *turn) applyActions(actions []domain.SetParameterAction) {
	for _, a := range actions {
		if a.Value == nil {
			delete(t.state.Parameters, a.Parameter)
			continue
		}
		t.state.Parameters[a.Parameter] = a.Value
	}
}

// emit renders a message and appends it to the turn output. Text messages collapse to a
// single variant with session references interpolated.
func (t *turn) emit(m domain.ResponseMessage) {
	if m.Text != nil && len(m.Text.Text) > 0 {
		variant := m.Text.Text[t.state.TurnCount%len(m.Text.Text)]
		m.Text = &domain.TextMessage{Text: []string{interpolate(variant, t.state.Parameters)}}
	}
	if m.EndInteraction != nil {
		t.closed = true
	}
	t.messages = append(t.messages, m)
}

// interpolate replaces $session.params.<path> references. Unknown references render empty.
func interpolate(text string, params map[string]any) string {
	if !strings.Contains(text, "$session.params.") {
		return text
	}
	return sessionRef.ReplaceAllStringFunc(text, func(ref string) string {
		path := strings.Split(sessionRef.FindStringSubmatch(ref)[1], ".")
		v, ok := lookup(params, path)
		if !ok {
			return ""
		}
		return formatValue(v)
	})
}

func lookup(params map[string]any, path []string) (any, bool) {
	var cur any = params
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, formatValue(item))
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+formatValue(t[k]))
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprint(v)
}
