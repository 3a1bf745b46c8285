// Package evalexpr evaluates the restricted expression grammar that stands in
// for Python's eval builtin inside the sandbox.
//
// Accepted input, after surrounding whitespace is removed:
//
//	expr    = signed | signed binop signed | list | tuple
//	signed  = [ "+" | "-" ] number
//	binop   = "+" | "-" | "*" | "/" | "//" | "%" | "**"
//	list    = "[" [ literal { "," literal } [ "," ] ] "]"
//	tuple   = "(" [ literal { "," literal } [ "," ] ] ")"
//	literal = [ "+" | "-" ] number | string
//	number  = ( digits [ "." [ digits ] ] | "." digits ) [ exponent ]
//	string  = single- or double-quoted, with backslash escapes
//
// A parenthesised single literal without a trailing comma evaluates to the
// literal itself. A leading sign binds looser than "**", so -2**2 is -4.
// Everything else is rejected with ErrUnsupported.
package evalexpr

import (
	"errors"
	"fmt"
	"math"
	"math/big"
)

var (
	ErrUnsupported    = errors.New("unsupported expression")
	ErrDivisionByZero = errors.New("division by zero")
)

// maxExponent bounds integer powers so a single eval cannot exhaust memory.
const maxExponent = 4096

// Eval parses and evaluates expr.
func Eval(expr string) (Value, error) {
	p := &parser{src: expr}
	p.skipSpace()

	var (
		v   Value
		err error
	)
	switch p.peek() {
	case '[':
		v, err = p.sequence('[', ']', KindList)
	case '(':
		v, err = p.sequence('(', ')', KindTuple)
	default:
		v, err = p.arithmetic()
	}
	if err != nil {
		return Value{}, err
	}

	p.skipSpace()
	if !p.eof() {
		return Value{}, p.unsupported("trailing input")
	}
	return v, nil
}

func (p *parser) arithmetic() (Value, error) {
	neg, left, err := p.signed()
	if err != nil {
		return Value{}, err
	}
	p.skipSpace()
	if p.eof() {
		if neg {
			return negate(left), nil
		}
		return left, nil
	}

	op, ok := p.operator()
	if !ok {
		return Value{}, p.unsupported("expected operator")
	}
	p.skipSpace()
	right, err := p.signedNumber()
	if err != nil {
		return Value{}, err
	}

	// -a**b is -(a**b); every other operator sees the signed left operand.
	if op == "**" {
		v, err := apply(op, left, right)
		if err != nil || !neg {
			return v, err
		}
		return negate(v), nil
	}
	if neg {
		left = negate(left)
	}
	return apply(op, left, right)
}

func apply(op string, a, b Value) (Value, error) {
	if a.Kind == KindInt && b.Kind == KindInt {
		return applyInt(op, a.Int, b.Int)
	}
	return applyFloat(op, a.asFloat(), b.asFloat())
}

func applyInt(op string, a, b *big.Int) (Value, error) {
	switch op {
	case "+":
		return intValue(new(big.Int).Add(a, b)), nil
	case "-":
		return intValue(new(big.Int).Sub(a, b)), nil
	case "*":
		return intValue(new(big.Int).Mul(a, b)), nil
	case "/":
		if b.Sign() == 0 {
			return Value{}, ErrDivisionByZero
		}
		q, _ := new(big.Rat).SetFrac(a, b).Float64()
		return floatValue(q), nil
	case "//", "%":
		if b.Sign() == 0 {
			return Value{}, ErrDivisionByZero
		}
		q, r := floorDivMod(a, b)
		if op == "//" {
			return intValue(q), nil
		}
		return intValue(r), nil
	case "**":
		if b.Sign() < 0 {
			return applyFloat(op, asFloat(a), asFloat(b))
		}
		if b.Cmp(big.NewInt(maxExponent)) > 0 {
			return Value{}, fmt.Errorf("%w: exponent too large", ErrUnsupported)
		}
		return intValue(new(big.Int).Exp(a, b, nil)), nil
	}
	return Value{}, fmt.Errorf("%w: operator %q", ErrUnsupported, op)
}

// floorDivMod implements Python's floor division, where the remainder takes
// the sign of the divisor.
func floorDivMod(a, b *big.Int) (*big.Int, *big.Int) {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() != 0 && (r.Sign() < 0) != (b.Sign() < 0) {
		q.Sub(q, big.NewInt(1))
		r.Add(r, b)
	}
	return q, r
}

func applyFloat(op string, a, b float64) (Value, error) {
	switch op {
	case "+":
		return floatValue(a + b), nil
	case "-":
		return floatValue(a - b), nil
	case "*":
		return floatValue(a * b), nil
	case "/":
		if b == 0 {
			return Value{}, ErrDivisionByZero
		}
		return floatValue(a / b), nil
	case "//":
		if b == 0 {
			return Value{}, ErrDivisionByZero
		}
		return floatValue(math.Floor(a / b)), nil
	case "%":
		if b == 0 {
			return Value{}, ErrDivisionByZero
		}
		r := math.Mod(a, b)
		if r != 0 && (r < 0) != (b < 0) {
			r += b
		}
		return floatValue(r), nil
	case "**":
		if a == 0 && b < 0 {
			return Value{}, ErrDivisionByZero
		}
		return floatValue(math.Pow(a, b)), nil
	}
	return Value{}, fmt.Errorf("%w: operator %q", ErrUnsupported, op)
}

func asFloat(i *big.Int) float64 {
	return intValue(i).asFloat()
}
