package condition

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SyntaxError reports a malformed condition.
type SyntaxError struct {
	Expression string
	Pos        int
	Msg        string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("condition %q: %s at offset %d", e.Expression, e.Msg, e.Pos)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokRef
	tokString
	tokNumber
	tokBool
	tokNull
	tokAnd
	tokOr
	tokNot
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == '"' || c == '\'':
			start := i
			i++
			var sb strings.Builder
			for i < len(src) && src[i] != c {
				if src[i] == '\\' && i+1 < len(src) {
					i++
				}
				sb.WriteByte(src[i])
				i++
			}
			if i >= len(src) {
				return nil, &SyntaxError{Expression: src, Pos: start, Msg: "unterminated string"}
			}
			i++
			toks = append(toks, token{tokString, sb.String(), start})
		case c == '=' || c == '!' || c == '<' || c == '>':
			start := i
			op := string(c)
			if i+1 < len(src) && src[i+1] == '=' {
				op += "="
				i++
			}
			i++
			switch op {
			case "=", "==":
				op = "=="
			case "!":
				return nil, &SyntaxError{Expression: src, Pos: start, Msg: "use NOT for negation"}
			}
			toks = append(toks, token{tokOp, op, start})
		case c == '&' || c == '|':
			if i+1 < len(src) && src[i+1] == c {
				kind := tokAnd
				if c == '|' {
					kind = tokOr
				}
				toks = append(toks, token{kind, src[i : i+2], i})
				i += 2
				continue
			}
			return nil, &SyntaxError{Expression: src, Pos: i, Msg: fmt.Sprintf("unexpected %q", c)}
		case c == '-' || (c >= '0' && c <= '9'):
			start := i
			i++
			for i < len(src) && (src[i] == '.' || (src[i] >= '0' && src[i] <= '9')) {
				i++
			}
			text := src[start:i]
			if _, err := strconv.ParseFloat(text, 64); err != nil {
				return nil, &SyntaxError{Expression: src, Pos: start, Msg: fmt.Sprintf("bad number %q", text)}
			}
			toks = append(toks, token{tokNumber, text, start})
		default:
			r, size := utf8.DecodeRuneInString(src[i:])
			if !isIdentStart(r) {
				return nil, &SyntaxError{Expression: src, Pos: i, Msg: fmt.Sprintf("unexpected %q", r)}
			}
			start := i
			i += size
			for i < len(src) {
				r, size := utf8.DecodeRuneInString(src[i:])
				if !isIdentRune(r) {
					break
				}
				i += size
			}
			word := src[start:i]
			switch strings.ToUpper(word) {
			case "AND":
				toks = append(toks, token{tokAnd, word, start})
			case "OR":
				toks = append(toks, token{tokOr, word, start})
			case "NOT":
				toks = append(toks, token{tokNot, word, start})
			case "TRUE", "FALSE":
				toks = append(toks, token{tokBool, strings.ToLower(word), start})
			case "NULL":
				toks = append(toks, token{tokNull, word, start})
			default:
				toks = append(toks, token{tokRef, word, start})
			}
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

func isIdentStart(r rune) bool {
	return r == '$' || r == '_' || unicode.IsLetter(r)
}

func isIdentRune(r rune) bool {
	return isIdentStart(r) || r == '.' || r == '-' || unicode.IsDigit(r)
}

// translate turns a condition into expr source. References become dig() calls so that
// unset parameters evaluate to nil; ordering operators become calls that fail closed.
func translate(src string) (string, error) {
	toks, err := tokenize(src)
	if err != nil {
		return "", err
	}
	p := &parser{src: src, toks: toks}
	out, err := p.parseOr()
	if err != nil {
		return "", err
	}
	if t := p.peek(); t.kind != tokEOF {
		return "", p.errorf(t, "unexpected %q", t.text)
	}
	return out, nil
}

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &SyntaxError{Expression: p.src, Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseOr() (string, error) {
	left, err := p.parseAnd()
	if err != nil {
		return "", err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return "", err
		}
		left = "(" + left + " || " + right + ")"
	}
	return left, nil
}

func (p *parser) parseAnd() (string, error) {
	left, err := p.parseNot()
	if err != nil {
		return "", err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return "", err
		}
		left = "(" + left + " && " + right + ")"
	}
	return left, nil
}

func (p *parser) parseNot() (string, error) {
	if p.peek().kind == tokNot {
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return "", err
		}
		return "!" + inner, nil
	}
	return p.parseComparison()
}

var orderingFuncs = map[string]string{
	"<":  "lt",
	"<=": "le",
	">":  "gt",
	">=": "ge",
}

func (p *parser) parseComparison() (string, error) {
	if p.peek().kind == tokLParen {
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return "", err
		}
		if t := p.next(); t.kind != tokRParen {
			return "", p.errorf(t, "expected )")
		}
		return "(" + inner + ")", nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return "", err
	}
	if p.peek().kind != tokOp {
		return "truthy(" + left + ")", nil
	}
	op := p.next()
	right, err := p.parseOperand()
	if err != nil {
		return "", err
	}
	if fn, ok := orderingFuncs[op.text]; ok {
		return fn + "(" + left + ", " + right + ")", nil
	}
	return "(" + left + " " + op.text + " " + right + ")", nil
}

func (p *parser) parseOperand() (string, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return strconv.Quote(t.text), nil
	case tokNumber:
		if !strings.Contains(t.text, ".") {
			return t.text + ".0", nil
		}
		return t.text, nil
	case tokBool:
		return t.text, nil
	case tokNull:
		return "nil", nil
	case tokRef:
		return reference(t.text), nil
	case tokEOF:
		return "", p.errorf(t, "unexpected end of expression")
	default:
		return "", p.errorf(t, "unexpected %q", t.text)
	}
}

// reference maps $session.params.a.b, $page.params.x and bare a.b to dig() calls.
func reference(name string) string {
	scope := "session"
	switch {
	case strings.HasPrefix(name, "$session.params."):
		name = strings.TrimPrefix(name, "$session.params.")
	case strings.HasPrefix(name, "$page.params."):
		scope = "page"
		name = strings.TrimPrefix(name, "$page.params.")
	default:
		name = strings.TrimPrefix(name, "$")
	}
	parts := strings.Split(name, ".")
	args := make([]string, 0, len(parts)+1)
	args = append(args, scope)
	for _, part := range parts {
		args = append(args, strconv.Quote(part))
	}
	return "dig(" + strings.Join(args, ", ") + ")"
}
