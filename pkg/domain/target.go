package domain

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

type targetKind uint8

const (
	targetNone targetKind = iota
	targetPage
	targetFlow
)

// Target is where a route or handler sends the session: a page, a flow, or nowhere.
// The zero value means "stay on the current page".
type Target struct {
	kind targetKind
	id   string
}

// PageTarget returns a target pointing at a page.
func PageTarget(pageID string) Target {
	return Target{kind: targetPage, id: pageID}
}

// FlowTarget returns a target pointing at a flow. An empty id targets the reserved
// end-session flow.
func FlowTarget(flowID string) Target {
	return Target{kind: targetFlow, id: flowID}
}

// IsZero reports whether the target is absent.
func (t Target) IsZero() bool { return t.kind == targetNone }

// IsPage reports whether the target is a page.
func (t Target) IsPage() bool { return t.kind == targetPage }

// IsFlow reports whether the target is a flow.
func (t Target) IsFlow() bool { return t.kind == targetFlow }

// ID returns the page or flow id.
func (t Target) ID() string { return t.id }

// EndsSession reports whether following the target closes the session.
func (t Target) EndsSession() bool {
	return (t.kind == targetFlow && t.id == "") || (t.kind == targetPage && t.id == PageEndSession)
}

func (t Target) String() string {
	switch t.kind {
	case targetPage:
		return "page:" + t.id
	case targetFlow:
		return "flow:" + t.id
	default:
		return ""
	}
}

// targetDoc is the serialized form: {page: X} or {flow: Y}.
type targetDoc struct {
	Page *string `json:"page,omitempty" yaml:"page,omitempty"`
	Flow *string `json:"flow,omitempty" yaml:"flow,omitempty"`
}

func (t *Target) fromDoc(doc targetDoc) error {
	switch {
	case doc.Page != nil && doc.Flow != nil:
		return fmt.Errorf("%w: both page %q and flow %q set", ErrInvalidTarget, *doc.Page, *doc.Flow)
	case doc.Page != nil:
		if *doc.Page == "" {
			return fmt.Errorf("%w: empty page id", ErrInvalidTarget)
		}
		*t = PageTarget(*doc.Page)
	case doc.Flow != nil:
		*t = FlowTarget(*doc.Flow)
	default:
		*t = Target{}
	}
	return nil
}

func (t Target) toDoc() targetDoc {
	id := t.id
	switch t.kind {
	case targetPage:
		return targetDoc{Page: &id}
	case targetFlow:
		return targetDoc{Flow: &id}
	}
	return targetDoc{}
}

// UnmarshalYAML decodes {page: X} / {flow: Y}.
func (t *Target) UnmarshalYAML(node *yaml.Node) error {
	var doc targetDoc
	if err := node.Decode(&doc); err != nil {
		return err
	}
	return t.fromDoc(doc)
}

// MarshalYAML encodes the target as {page: X} / {flow: Y}.
func (t Target) MarshalYAML() (any, error) {
	return t.toDoc(), nil
}

// UnmarshalJSON decodes {"page": X} / {"flow": Y}.
func (t *Target) UnmarshalJSON(data []byte) error {
	var doc targetDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	return t.fromDoc(doc)
}

// MarshalJSON encodes the target as {"page": X} / {"flow": Y}.
func (t Target) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.toDoc())
}
