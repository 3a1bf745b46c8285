package hostfunc

import (
	"context"
	"errors"

	"github.com/caffeineduck/codearena/preprocess/evalexpr"
)

// Eval is the host side of the guest's eval polyfill.
// Args: expr (required). The result uses evalexpr's tagged encoding.
func Eval(ctx context.Context, args map[string]any) (any, error) {
	expr, ok := args["expr"].(string)
	if !ok {
		return nil, &Error{Type: "TypeError", Message: "eval() arg 1 must be a string"}
	}

	v, err := evalexpr.Eval(expr)
	switch {
	case errors.Is(err, evalexpr.ErrDivisionByZero):
		return nil, &Error{Type: "ZeroDivisionError", Message: "division by zero"}
	case err != nil:
		return nil, &Error{Type: "ValueError", Message: "eval: " + err.Error()}
	}
	return v.Encode(), nil
}
