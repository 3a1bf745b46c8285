package evalexpr

import (
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Kind identifies the Python type of a Value.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindString
	KindList
	KindTuple
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "str"
	case KindList:
		return "list"
	case KindTuple:
		return "tuple"
	default:
		return "unknown"
	}
}

// Value is the result of evaluating an expression.
// Only the field matching Kind is meaningful.
type Value struct {
	Kind  Kind
	Int   *big.Int
	Float float64
	Str   string
	Items []Value
}

func intValue(i *big.Int) Value        { return Value{Kind: KindInt, Int: i} }
func floatValue(f float64) Value       { return Value{Kind: KindFloat, Float: f} }
func stringValue(s string) Value       { return Value{Kind: KindString, Str: s} }
func seqValue(k Kind, v []Value) Value { return Value{Kind: k, Items: v} }

func (v Value) isNumber() bool {
	return v.Kind == KindInt || v.Kind == KindFloat
}

func (v Value) asFloat() float64 {
	if v.Kind == KindFloat {
		return v.Float
	}
	f, _ := new(big.Float).SetInt(v.Int).Float64()
	return f
}

// String renders the value the way Python's repr does.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return v.Int.String()
	case KindFloat:
		return formatFloat(v.Float)
	case KindString:
		return quote(v.Str)
	case KindList, KindTuple:
		parts := make([]string, len(v.Items))
		for i, item := range v.Items {
			parts[i] = item.String()
		}
		if v.Kind == KindList {
			return "[" + strings.Join(parts, ", ") + "]"
		}
		if len(parts) == 1 {
			return "(" + parts[0] + ",)"
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}
	return ""
}

// Encode converts the value into the tagged form understood by the guest
// polyfill: {"int": "5"}, {"float": "2.5"}, {"str": "a"}, {"list": [...]}.
func (v Value) Encode() map[string]any {
	switch v.Kind {
	case KindInt:
		return map[string]any{"int": v.Int.String()}
	case KindFloat:
		return map[string]any{"float": strconv.FormatFloat(v.Float, 'g', -1, 64)}
	case KindString:
		return map[string]any{"str": v.Str}
	}
	items := make([]any, len(v.Items))
	for i, item := range v.Items {
		items[i] = item.Encode()
	}
	return map[string]any{v.Kind.String(): items}
}

// formatFloat follows Python's shortest repr: fixed notation for decimal
// exponents in [-4, 16), scientific otherwise.
func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	_, expStr, _ := strings.Cut(sci, "e")
	exp, _ := strconv.Atoi(expStr)
	if exp < -4 || exp >= 16 {
		return sci
	}

	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString(`\'`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}
