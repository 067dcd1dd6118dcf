// Package condition evaluates route and case conditions against session parameters.
//
// The dialect supports parameter references ($session.params.name, $page.params.status
// or a bare name), the comparison operators = == != < <= > >=, AND / OR / NOT, parentheses
// and string, number, boolean and null literals. Unset parameters evaluate as null.
package condition

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Scope holds the values visible to a condition.
type Scope struct {
	Session map[string]any
	Page    map[string]any
}

type compiled struct {
	program *vm.Program
	err     error
}

// Evaluator compiles conditions once and caches the programs. Safe for concurrent use.
type Evaluator struct {
	programs sync.Map // string -> *compiled
}

// New creates an Evaluator.
func New() *Evaluator {
	return &Evaluator{}
}

// Evaluate reports whether the expression holds. An empty expression is true.
// Malformed expressions and runtime type errors return false together with the error;
// callers treat that as a non-fatal diagnostic.
func (e *Evaluator) Evaluate(expression string, scope Scope) (bool, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return true, nil
	}

	c := e.compile(expression)
	if c.err != nil {
		return false, c.err
	}

	session, page := scope.Session, scope.Page
	if session == nil {
		session = map[string]any{}
	}
	if page == nil {
		page = map[string]any{}
	}
	out, err := expr.Run(c.program, map[string]any{"session": session, "page": page})
	if err != nil {
		return false, fmt.Errorf("condition %q: %w", expression, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q: result %T is not a boolean", expression, out)
	}
	return b, nil
}

func (e *Evaluator) compile(expression string) *compiled {
	if c, ok := e.programs.Load(expression); ok {
		return c.(*compiled)
	}

	c := &compiled{}
	src, err := translate(expression)
	if err != nil {
		c.err = err
	} else {
		c.program, c.err = expr.Compile(src, options...)
		if c.err != nil {
			c.err = &SyntaxError{Expression: expression, Msg: c.err.Error()}
		}
	}

	actual, _ := e.programs.LoadOrStore(expression, c)
	return actual.(*compiled)
}

var options = []expr.Option{
	expr.Env(map[string]any{
		"session": map[string]any{},
		"page":    map[string]any{},
	}),
	expr.Function("dig", dig),
	expr.Function("truthy", func(params ...any) (any, error) { return truthy(params[0]), nil }),
	expr.Function("lt", ordered(func(c int) bool { return c < 0 })),
	expr.Function("le", ordered(func(c int) bool { return c <= 0 })),
	expr.Function("gt", ordered(func(c int) bool { return c > 0 })),
	expr.Function("ge", ordered(func(c int) bool { return c >= 0 })),
}

func dig(params ...any) (any, error) {
	cur := params[0]
	for _, p := range params[1:] {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, nil
		}
		cur = m[p.(string)]
	}
	return normalize(cur), nil
}

// normalize folds numeric representations so that = compares 5, 5.0 and json.Number("5") equally.
func normalize(v any) any {
	switch n := v.(type) {
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case uint:
		return float64(n)
	case uint64:
		return float64(n)
	}
	return v
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return true
	}
}

func ordered(accept func(int) bool) func(params ...any) (any, error) {
	return func(params ...any) (any, error) {
		c, ok := compare(normalize(params[0]), normalize(params[1]))
		return ok && accept(c), nil
	}
}

// compare orders numbers numerically and strings lexically. Numeric strings compare as
// numbers against numbers. Anything else, including null, is unordered.
func compare(a, b any) (int, bool) {
	af, aNum := asFloat(a)
	bf, bNum := asFloat(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}
