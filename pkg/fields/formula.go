package fields

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// EvaluateFormula computes an arithmetic expression over field codes, e.g.
// "precio * cantidad * (1 + iva)". Supported: + - * / %, parentheses, unary
// minus, numeric literals, and identifiers resolved against datos. The
// evaluator is deliberately closed: no function calls, no string handling,
// no side effects. A missing reference, parse error, or division by zero
// yields ok=false, never an error.
func EvaluateFormula(expression string, datos map[string]any) (float64, bool) {
	parser := &formulaParser{input: normalizeFormula(expression), datos: datos}

	result, ok := parser.parseExpression()
	if !ok {
		return 0, false
	}

	parser.skipSpaces()

	if parser.pos != len(parser.input) {
		return 0, false
	}

	return result, true
}

type formulaParser struct {
	input string
	pos   int
	datos map[string]any
}

func (p *formulaParser) skipSpaces() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *formulaParser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}

	return p.input[p.pos]
}

// parseExpression := term (('+'|'-') term)*
func (p *formulaParser) parseExpression() (float64, bool) {
	left, ok := p.parseTerm()
	if !ok {
		return 0, false
	}

	for {
		p.skipSpaces()

		op := p.peek()
		if op != '+' && op != '-' {
			return left, true
		}

		p.pos++

		right, ok := p.parseTerm()
		if !ok {
			return 0, false
		}

		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

// parseTerm := unary (('*'|'/'|'%') unary)*
func (p *formulaParser) parseTerm() (float64, bool) {
	left, ok := p.parseUnary()
	if !ok {
		return 0, false
	}

	for {
		p.skipSpaces()

		op := p.peek()
		if op != '*' && op != '/' && op != '%' {
			return left, true
		}

		p.pos++

		right, ok := p.parseUnary()
		if !ok {
			return 0, false
		}

		switch op {
		case '*':
			left *= right
		case '/':
			if right == 0 {
				return 0, false
			}

			left /= right
		case '%':
			if right == 0 {
				return 0, false
			}

			left = float64(int64(left) % int64(right))
		}
	}
}

// parseUnary := '-'? primary
func (p *formulaParser) parseUnary() (float64, bool) {
	p.skipSpaces()

	if p.peek() == '-' {
		p.pos++

		value, ok := p.parsePrimary()
		if !ok {
			return 0, false
		}

		return -value, true
	}

	return p.parsePrimary()
}

// parsePrimary := number | identifier | '(' expression ')'
func (p *formulaParser) parsePrimary() (float64, bool) {
	p.skipSpaces()

	ch, _ := utf8.DecodeRuneInString(p.input[p.pos:])

	switch {
	case ch == '(':
		p.pos++

		value, ok := p.parseExpression()
		if !ok {
			return 0, false
		}

		p.skipSpaces()

		if p.peek() != ')' {
			return 0, false
		}

		p.pos++

		return value, true
	case ch >= '0' && ch <= '9' || ch == '.':
		return p.parseNumber()
	case isIdentStart(ch):
		return p.parseIdentifier()
	default:
		return 0, false
	}
}

func (p *formulaParser) parseNumber() (float64, bool) {
	start := p.pos
	for p.pos < len(p.input) {
		ch := p.input[p.pos]
		if ch >= '0' && ch <= '9' || ch == '.' {
			p.pos++
			continue
		}

		break
	}

	value, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, false
	}

	return value, true
}

func (p *formulaParser) parseIdentifier() (float64, bool) {
	start := p.pos
	for p.pos < len(p.input) {
		ch, size := utf8.DecodeRuneInString(p.input[p.pos:])
		if !isIdentPart(ch) {
			break
		}

		p.pos += size
	}

	name := p.input[start:p.pos]

	raw, found := p.datos[name]
	if !found {
		return 0, false
	}

	value, ok := asNumber(raw)
	if !ok {
		return 0, false
	}

	return value, true
}

func isIdentStart(ch rune) bool {
	return unicode.IsLetter(ch) || ch == '_'
}

func isIdentPart(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

// ReferencedFields returns the identifiers a formula mentions, in order of
// first appearance. Used by template validation to verify references exist.
func ReferencedFields(expression string) []string {
	seen := make(map[string]bool)
	refs := make([]string, 0)

	for pos := 0; pos < len(expression); {
		ch, size := utf8.DecodeRuneInString(expression[pos:])
		if !isIdentStart(ch) {
			pos += size
			continue
		}

		start := pos
		for pos < len(expression) {
			ch, size := utf8.DecodeRuneInString(expression[pos:])
			if !isIdentPart(ch) {
				break
			}

			pos += size
		}

		name := expression[start:pos]
		if !seen[name] {
			seen[name] = true

			refs = append(refs, name)
		}
	}

	return refs
}

// trim of surrounding whitespace happens lazily in the parser, but callers
// sometimes store formulas with stray tabs.
func normalizeFormula(expression string) string {
	return strings.TrimSpace(strings.ReplaceAll(expression, "\t", " "))
}
