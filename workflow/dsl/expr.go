package dsl

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Evaluate evaluates a condition expression against the given variables and
// returns its boolean value. The grammar is deliberately small and is parsed
// into an AST-free recursive descent evaluation; no dynamic code execution
// is involved.
//
// Supported: ==, !=, >, <, >=, <=, &&, ||, ! (also the keywords and/or/not),
// parentheses, quoted strings, numbers, true/false, and dot-path variable
// lookups such as detect.success or inputs.issue_id.
//
// An empty expression evaluates to false. A lookup of a missing path yields
// nil, which is falsy and compares only equal to nil.
func Evaluate(expr string, vars map[string]any) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false, nil
	}

	toks, err := scan(expr)
	if err != nil {
		return false, err
	}
	if len(toks) == 0 {
		return false, nil
	}

	p := &parser{toks: toks, vars: vars}
	v, err := p.or()
	if err != nil {
		return false, err
	}
	if p.pos < len(p.toks) {
		return false, fmt.Errorf("trailing token %q in expression %q", p.toks[p.pos].text, expr)
	}
	return truthy(v), nil
}

// Lookup resolves a dot-path from the vars map without evaluating anything.
// "detect" -> vars["detect"], "detect.output" -> vars["detect"].(map)["output"].
// Missing segments resolve to nil.
func Lookup(path string, vars map[string]any) any {
	cur := any(vars)
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return cur
}

type tokKind int

const (
	tokNum tokKind = iota
	tokStr
	tokWord // identifier, dot-path, true/false/and/or/not
	tokOp
	tokLParen
	tokRParen
)

type tok struct {
	kind tokKind
	text string
}

func scan(expr string) ([]tok, error) {
	var out []tok
	rs := []rune(expr)
	i := 0
	for i < len(rs) {
		c := rs[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			out = append(out, tok{tokLParen, "("})
			i++
		case c == ')':
			out = append(out, tok{tokRParen, ")"})
			i++
		case c == '"' || c == '\'':
			s, next, err := scanString(rs, i)
			if err != nil {
				return nil, err
			}
			out = append(out, tok{tokStr, s})
			i = next
		case isTwoCharOp(rs, i):
			out = append(out, tok{tokOp, string(rs[i : i+2])})
			i += 2
		case c == '>' || c == '<' || c == '!':
			out = append(out, tok{tokOp, string(c)})
			i++
		case unicode.IsDigit(c) || (c == '-' && i+1 < len(rs) && unicode.IsDigit(rs[i+1]) && negAllowed(out)):
			n, next := scanNumber(rs, i)
			out = append(out, tok{tokNum, n})
			i = next
		case unicode.IsLetter(c) || c == '_':
			w, next := scanWord(rs, i)
			out = append(out, tok{tokWord, w})
			i = next
		default:
			return nil, fmt.Errorf("unexpected character %q at offset %d", string(c), i)
		}
	}
	return out, nil
}

func isTwoCharOp(rs []rune, i int) bool {
	if i+1 >= len(rs) {
		return false
	}
	switch string(rs[i : i+2]) {
	case "==", "!=", ">=", "<=", "&&", "||":
		return true
	}
	return false
}

func scanString(rs []rune, start int) (string, int, error) {
	quote := rs[start]
	var b strings.Builder
	i := start + 1
	for i < len(rs) {
		if rs[i] == '\\' && i+1 < len(rs) {
			b.WriteRune(rs[i+1])
			i += 2
			continue
		}
		if rs[i] == quote {
			return b.String(), i + 1, nil
		}
		b.WriteRune(rs[i])
		i++
	}
	return "", 0, fmt.Errorf("unterminated string at offset %d", start)
}

func scanNumber(rs []rune, start int) (string, int) {
	i := start
	if rs[i] == '-' {
		i++
	}
	for i < len(rs) && unicode.IsDigit(rs[i]) {
		i++
	}
	if i < len(rs) && rs[i] == '.' {
		i++
		for i < len(rs) && unicode.IsDigit(rs[i]) {
			i++
		}
	}
	return string(rs[start:i]), i
}

func scanWord(rs []rune, start int) (string, int) {
	i := start
	for i < len(rs) && (unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i]) || rs[i] == '_' || rs[i] == '.') {
		i++
	}
	return string(rs[start:i]), i
}

// negAllowed reports whether a '-' at the current position starts a negative
// number literal rather than following a value.
func negAllowed(prev []tok) bool {
	if len(prev) == 0 {
		return true
	}
	last := prev[len(prev)-1]
	return last.kind == tokOp || last.kind == tokLParen
}

type parser struct {
	toks []tok
	pos  int
	vars map[string]any
}

func (p *parser) peek() *tok {
	if p.pos < len(p.toks) {
		return &p.toks[p.pos]
	}
	return nil
}

func (p *parser) next() tok {
	t := p.toks[p.pos]
	p.pos++
	return t
}

func (p *parser) or() (any, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.matchOp("||") || p.matchWord("or") {
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		left = truthy(left) || truthy(right)
	}
	return left, nil
}

func (p *parser) and() (any, error) {
	left, err := p.comparison()
	if err != nil {
		return nil, err
	}
	for p.matchOp("&&") || p.matchWord("and") {
		right, err := p.comparison()
		if err != nil {
			return nil, err
		}
		left = truthy(left) && truthy(right)
	}
	return left, nil
}

func (p *parser) comparison() (any, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t != nil && t.kind == tokOp {
		switch t.text {
		case "==", "!=", ">", "<", ">=", "<=":
			op := p.next().text
			right, err := p.unary()
			if err != nil {
				return nil, err
			}
			return compare(left, op, right), nil
		}
	}
	return left, nil
}

func (p *parser) unary() (any, error) {
	if p.matchOp("!") || p.matchWord("not") {
		v, err := p.unary()
		if err != nil {
			return nil, err
		}
		return !truthy(v), nil
	}
	return p.primary()
}

func (p *parser) primary() (any, error) {
	t := p.peek()
	if t == nil {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	switch t.kind {
	case tokNum:
		p.next()
		return strconv.ParseFloat(t.text, 64)
	case tokStr:
		p.next()
		return t.text, nil
	case tokWord:
		p.next()
		switch t.text {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null", "nil":
			return nil, nil
		default:
			return Lookup(t.text, p.vars), nil
		}
	case tokLParen:
		p.next()
		v, err := p.or()
		if err != nil {
			return nil, err
		}
		if p.peek() == nil || p.peek().kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.next()
		return v, nil
	default:
		return nil, fmt.Errorf("unexpected token %q", t.text)
	}
}

func (p *parser) matchOp(op string) bool {
	if t := p.peek(); t != nil && t.kind == tokOp && t.text == op {
		p.next()
		return true
	}
	return false
}

func (p *parser) matchWord(w string) bool {
	if t := p.peek(); t != nil && t.kind == tokWord && t.text == w {
		p.next()
		return true
	}
	return false
}

// compare evaluates left <op> right. Numeric comparison is attempted first;
// anything else falls back to string comparison. nil orders below every
// non-nil value and equals only nil.
func compare(left any, op string, right any) bool {
	if left == nil && right == nil {
		return op == "==" || op == ">=" || op == "<="
	}
	if left == nil || right == nil {
		switch op {
		case "!=":
			return true
		case "==":
			return false
		}
		if left == nil {
			return op == "<" || op == "<="
		}
		return op == ">" || op == ">="
	}

	if lf, lok := asFloat(left); lok {
		if rf, rok := asFloat(right); rok {
			switch op {
			case "==":
				return lf == rf
			case "!=":
				return lf != rf
			case ">":
				return lf > rf
			case "<":
				return lf < rf
			case ">=":
				return lf >= rf
			case "<=":
				return lf <= rf
			}
		}
	}

	ls, rs := fmt.Sprintf("%v", left), fmt.Sprintf("%v", right)
	switch op {
	case "==":
		return ls == rs
	case "!=":
		return ls != rs
	case ">":
		return ls > rs
	case "<":
		return ls < rs
	case ">=":
		return ls >= rs
	case "<=":
		return ls <= rs
	}
	return false
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case string:
		return val != "" && val != "false" && val != "0"
	default:
		return true
	}
}

func asFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
