package value

import (
	"errors"
	"fmt"
	"math"

	"github.com/nilstack/stackvm/lang/token"
)

// ErrDivByZero is returned by integer division and remainder when the
// divisor is zero. Real division by zero is not an error: it follows
// IEEE-754 and produces +Inf, -Inf, or NaN.
var ErrDivByZero = errors.New("value: integer division by zero")

// Binary applies a binary operator to x and y. Arithmetic operators
// follow spec.md §3's "Arithmetic coercion": the result type follows the
// left operand, with the right operand coerced to match (Integer coerces
// a Real right operand by truncation; Real widens an Integer right
// operand exactly). Bitwise operators coerce both operands to Integer and
// always produce an Integer.
func Binary(op token.Token, x, y Value) (Value, error) {
	switch op {
	case token.PLUS, token.MINUS, token.STAR, token.SLASH, token.PERCENT:
		return arith(op, x, y)
	case token.AMPERSAND, token.PIPE, token.CIRCUMFLEX, token.LTLT, token.GTGT:
		xi, err := CoerceInt(x)
		if err != nil {
			return nil, err
		}
		yi, err := CoerceInt(y)
		if err != nil {
			return nil, err
		}
		return bitwise(op, xi, yi)
	default:
		return nil, fmt.Errorf("value: unsupported binary operator %s", op)
	}
}

func arith(op token.Token, x, y Value) (Value, error) {
	switch xv := x.(type) {
	case Int:
		yi, err := CoerceInt(y)
		if err != nil {
			return nil, err
		}
		return intArith(op, xv, yi)
	case Real:
		yr, err := CoerceReal(y)
		if err != nil {
			return nil, err
		}
		return realArith(op, xv, yr)
	default:
		return nil, &BadTypeError{Kind: x.Kind()}
	}
}

func intArith(op token.Token, x, y Int) (Value, error) {
	switch op {
	case token.PLUS:
		return x + y, nil
	case token.MINUS:
		return x - y, nil
	case token.STAR:
		return x * y, nil
	case token.SLASH:
		if y == 0 {
			return nil, ErrDivByZero
		}
		return x / y, nil
	case token.PERCENT:
		if y == 0 {
			return nil, ErrDivByZero
		}
		return x % y, nil
	default:
		return nil, fmt.Errorf("value: unsupported integer operator %s", op)
	}
}

func realArith(op token.Token, x, y Real) (Value, error) {
	switch op {
	case token.PLUS:
		return x + y, nil
	case token.MINUS:
		return x - y, nil
	case token.STAR:
		return x * y, nil
	case token.SLASH:
		return x / y, nil
	case token.PERCENT:
		return Real(math.Mod(float64(x), float64(y))), nil
	default:
		return nil, fmt.Errorf("value: unsupported real operator %s", op)
	}
}

func bitwise(op token.Token, x, y Int) (Value, error) {
	switch op {
	case token.AMPERSAND:
		return x & y, nil
	case token.PIPE:
		return x | y, nil
	case token.CIRCUMFLEX:
		return x ^ y, nil
	case token.LTLT:
		return x << uint(y), nil
	case token.GTGT:
		return x >> uint(y), nil
	default:
		return nil, fmt.Errorf("value: unsupported bitwise operator %s", op)
	}
}

// Unary applies a unary operator to x.
func Unary(op token.Token, x Value) (Value, error) {
	switch op {
	case token.UMINUS:
		switch v := x.(type) {
		case Int:
			return -v, nil
		case Real:
			return -v, nil
		default:
			return nil, &BadTypeError{Kind: x.Kind()}
		}
	case token.TILDE:
		xi, err := CoerceInt(x)
		if err != nil {
			return nil, err
		}
		return ^xi, nil
	default:
		return nil, fmt.Errorf("value: unsupported unary operator %s", op)
	}
}

// Floor, Ceil, Trunc and Round coerce their operand to Real and apply the
// matching IEEE-754 rounding function (spec.md §3's real-only opcode
// family).
func Floor(v Value) (Value, error) { return roundOp(v, math.Floor) }
func Ceil(v Value) (Value, error)  { return roundOp(v, math.Ceil) }
func Trunc(v Value) (Value, error) { return roundOp(v, math.Trunc) }
func Round(v Value) (Value, error) { return roundOp(v, math.Round) }

func roundOp(v Value, f func(float64) float64) (Value, error) {
	r, err := CoerceReal(v)
	if err != nil {
		return nil, err
	}
	return Real(f(float64(r))), nil
}

// IntToReal converts v to Int (truncating a Real operand, same as
// CoerceInt) and then widens that Int to Real.
func IntToReal(v Value) (Value, error) {
	i, err := CoerceInt(v)
	if err != nil {
		return nil, err
	}
	return Real(i), nil
}
