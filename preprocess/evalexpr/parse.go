package evalexpr

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) skipSpace() {
	for !p.eof() {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) unsupported(reason string) error {
	return fmt.Errorf("%w: %s at offset %d in %q", ErrUnsupported, reason, p.pos, p.src)
}

var operators = []string{"**", "//", "+", "-", "*", "/", "%"}

func (p *parser) operator() (string, bool) {
	rest := p.src[p.pos:]
	for _, op := range operators {
		if strings.HasPrefix(rest, op) {
			p.pos += len(op)
			return op, true
		}
	}
	return "", false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// signed parses a number with an optional unary sign. The sign is returned
// apart from the magnitude because it binds looser than "**".
func (p *parser) signed() (neg bool, v Value, err error) {
	switch p.peek() {
	case '-':
		neg = true
		fallthrough
	case '+':
		p.pos++
		p.skipSpace()
	}
	v, err = p.number()
	return neg, v, err
}

func (p *parser) signedNumber() (Value, error) {
	neg, v, err := p.signed()
	if err != nil || !neg {
		return v, err
	}
	return negate(v), nil
}

func negate(v Value) Value {
	if v.Kind == KindInt {
		return intValue(new(big.Int).Neg(v.Int))
	}
	return floatValue(-v.Float)
}

func (p *parser) number() (Value, error) {
	start := p.pos
	digits := 0
	for isDigit(p.peek()) || p.peek() == '_' {
		if p.peek() != '_' {
			digits++
		}
		p.pos++
	}
	isFloat := false
	if p.peek() == '.' {
		isFloat = true
		p.pos++
		for isDigit(p.peek()) {
			digits++
			p.pos++
		}
	}
	if digits == 0 {
		p.pos = start
		return Value{}, p.unsupported("expected number")
	}
	if c := p.peek(); c == 'e' || c == 'E' {
		isFloat = true
		p.pos++
		if c := p.peek(); c == '+' || c == '-' {
			p.pos++
		}
		if !isDigit(p.peek()) {
			return Value{}, p.unsupported("malformed exponent")
		}
		for isDigit(p.peek()) {
			p.pos++
		}
	}

	text := strings.ReplaceAll(p.src[start:p.pos], "_", "")
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, p.unsupported("malformed float")
		}
		return floatValue(f), nil
	}
	i, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return Value{}, p.unsupported("malformed integer")
	}
	return intValue(i), nil
}

func (p *parser) literal() (Value, error) {
	if c := p.peek(); c == '\'' || c == '"' {
		return p.str()
	}
	return p.signedNumber()
}

func (p *parser) str() (Value, error) {
	q := p.peek()
	p.pos++
	var b strings.Builder
	for !p.eof() {
		c := p.src[p.pos]
		p.pos++
		switch c {
		case q:
			return stringValue(b.String()), nil
		case '\\':
			if p.eof() {
				return Value{}, p.unsupported("unterminated string")
			}
			e := p.src[p.pos]
			p.pos++
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\', '\'', '"':
				b.WriteByte(e)
			default:
				b.WriteByte('\\')
				b.WriteByte(e)
			}
		case '\n':
			return Value{}, p.unsupported("newline in string")
		default:
			b.WriteByte(c)
		}
	}
	return Value{}, p.unsupported("unterminated string")
}

func (p *parser) sequence(open, close byte, kind Kind) (Value, error) {
	p.pos++ // open
	var items []Value
	trailingComma := false
	for {
		p.skipSpace()
		if p.peek() == close {
			p.pos++
			break
		}
		if p.eof() {
			return Value{}, p.unsupported(fmt.Sprintf("missing %q", close))
		}
		item, err := p.literal()
		if err != nil {
			return Value{}, err
		}
		items = append(items, item)
		trailingComma = false

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
			trailingComma = true
		case close:
		default:
			return Value{}, p.unsupported("expected ',' or " + strconv.QuoteRune(rune(close)))
		}
	}

	if kind == KindTuple && len(items) == 1 && !trailingComma {
		return items[0], nil
	}
	if items == nil {
		items = []Value{}
	}
	return seqValue(kind, items), nil
}
