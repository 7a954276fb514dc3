package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"dynamics-transfer/internal/fieldpath"
	"dynamics-transfer/internal/value"

	"github.com/dustin/go-humanize"
)

// NullHandling controls how a missing/null field reference behaves when it
// appears in an arithmetic (additive/multiplicative/unary) position.
type NullHandling int

const (
	// NullError fails evaluation when an arithmetic operand is null.
	NullError NullHandling = iota
	// NullZero substitutes 0 / 0.0 for a null arithmetic operand.
	NullZero
	// NullEmpty short-circuits the enclosing math subexpression to Null,
	// which renders as an empty string rather than failing evaluation.
	NullEmpty
)

// EvalError reports a failure encountered while evaluating a template. It
// carries only a message; the raw expression text is not included.
type EvalError struct {
	Msg string
}

func (e *EvalError) Error() string { return e.Msg }

func evalErrorf(format string, args ...any) error {
	return &EvalError{Msg: fmt.Sprintf(format, args...)}
}

// Resolver looks up a field path's value against whatever record context the
// caller is rendering against (typically the source record plus resolved
// lookup traversals already fetched for $expand).
type Resolver func(p fieldpath.FieldPath) (value.Value, bool)

// Render evaluates the template against resolver, applying null_handling to
// arithmetic contexts, and returns the fully interpolated string.
func (t *Template) Render(resolver Resolver, nullHandling NullHandling) (string, error) {
	var sb strings.Builder
	for _, p := range t.parts {
		if !p.isExpr {
			sb.WriteString(p.literal)
			continue
		}
		v, err := evalExpr(p.expr, resolver, nullHandling, false)
		if err != nil {
			return "", err
		}
		sb.WriteString(renderValue(v, p.spec))
	}
	return sb.String(), nil
}

// arithmetic marks whether the current evaluation context is inside
// additive/multiplicative/unary operators, where null_handling and the
// bool/string rejection rules apply.
func evalExpr(e Expr, resolve Resolver, nh NullHandling, arithmetic bool) (value.Value, error) {
	switch n := e.(type) {
	case LiteralExpr:
		return n.Value, nil
	case FieldRefExpr:
		v, ok := resolve(n.Path)
		if !ok {
			v = value.Null()
		}
		if arithmetic && v.IsNull() {
			switch nh {
			case NullZero:
				return value.Int(0), nil
			case NullEmpty:
				return value.Null(), nil
			case NullError:
				return value.Value{}, evalErrorf("format: null value for %q in arithmetic context", n.Path.String())
			}
		}
		return v, nil
	case UnaryExpr:
		operand, err := evalExpr(n.Operand, resolve, nh, true)
		if err != nil {
			return value.Value{}, err
		}
		if operand.IsNull() {
			return value.Null(), nil
		}
		return applyUnary(n.Op, operand)
	case BinaryExpr:
		return evalBinary(n, resolve, nh)
	case CoalesceExpr:
		var last error
		for i, operand := range n.Operands {
			v, err := evalExpr(operand, resolve, nh, arithmetic)
			if err != nil {
				last = err
				continue
			}
			if !v.IsNull() || i == len(n.Operands)-1 {
				return v, nil
			}
		}
		if last != nil {
			return value.Value{}, last
		}
		return value.Null(), nil
	case TernaryExpr:
		cond, err := evalExpr(n.Cond, resolve, nh, false)
		if err != nil {
			return value.Value{}, err
		}
		if cond.Truthy() {
			return evalExpr(n.Then, resolve, nh, arithmetic)
		}
		return evalExpr(n.Else, resolve, nh, arithmetic)
	default:
		return value.Value{}, evalErrorf("format: unknown expression node %T", e)
	}
}

func evalBinary(n BinaryExpr, resolve Resolver, nh NullHandling) (value.Value, error) {
	switch n.Op {
	case "==", "!=", "<", "<=", ">", ">=":
		left, err := evalExpr(n.Left, resolve, nh, false)
		if err != nil {
			return value.Value{}, err
		}
		right, err := evalExpr(n.Right, resolve, nh, false)
		if err != nil {
			return value.Value{}, err
		}
		return evalComparison(n.Op, left, right)
	default:
		left, err := evalExpr(n.Left, resolve, nh, true)
		if err != nil {
			return value.Value{}, err
		}
		right, err := evalExpr(n.Right, resolve, nh, true)
		if err != nil {
			return value.Value{}, err
		}
		if left.IsNull() || right.IsNull() {
			return value.Null(), nil
		}
		return applyArithmetic(n.Op, left, right)
	}
}

func evalComparison(op string, a, b value.Value) (value.Value, error) {
	if op == "==" {
		return value.Bool(a.Equal(b)), nil
	}
	if op == "!=" {
		return value.Bool(!a.Equal(b)), nil
	}
	// Ordering comparisons require both operands from the same numeric or
	// string family; no cross-kind coercion, unlike Equal.
	cmp, err := compareOrdered(a, b)
	if err != nil {
		return value.Value{}, err
	}
	switch op {
	case "<":
		return value.Bool(cmp < 0), nil
	case "<=":
		return value.Bool(cmp <= 0), nil
	case ">":
		return value.Bool(cmp > 0), nil
	case ">=":
		return value.Bool(cmp >= 0), nil
	default:
		return value.Value{}, evalErrorf("format: unknown comparison operator %q", op)
	}
}

func compareOrdered(a, b value.Value) (int, error) {
	numeric := func(v value.Value) (float64, bool) {
		switch v.Kind {
		case value.KindInt:
			return float64(v.Int), true
		case value.KindFloat:
			return v.Float, true
		default:
			return 0, false
		}
	}
	if af, ok := numeric(a); ok {
		if bf, ok := numeric(b); ok {
			switch {
			case af < bf:
				return -1, nil
			case af > bf:
				return 1, nil
			default:
				return 0, nil
			}
		}
		return 0, evalErrorf("format: cannot compare %s to %s", a.Kind, b.Kind)
	}
	if a.Kind == value.KindString && b.Kind == value.KindString {
		return strings.Compare(a.Str, b.Str), nil
	}
	if a.Kind == value.KindDateTime && b.Kind == value.KindDateTime {
		switch {
		case a.Time.Before(b.Time):
			return -1, nil
		case a.Time.After(b.Time):
			return 1, nil
		default:
			return 0, nil
		}
	}
	return 0, evalErrorf("format: cannot order-compare %s and %s", a.Kind, b.Kind)
}

func applyUnary(op string, v value.Value) (value.Value, error) {
	switch v.Kind {
	case value.KindInt:
		return value.Int(-v.Int), nil
	case value.KindFloat:
		return value.Float(-v.Float), nil
	default:
		return value.Value{}, evalErrorf("format: unary '-' requires a number, got %s", v.Kind)
	}
}

// applyArithmetic implements +, -, *, / with strict rules: bool and string
// operands (other than '+' string concatenation) are rejected, integer
// overflow is a hard error rather than silent wraparound, and division
// always yields a float unless both operands are ints that divide evenly.
func applyArithmetic(op string, a, b value.Value) (value.Value, error) {
	if op == "+" && a.Kind == value.KindString && b.Kind == value.KindString {
		return value.String(a.Str + b.Str), nil
	}
	if a.Kind == value.KindBool || b.Kind == value.KindBool {
		return value.Value{}, evalErrorf("format: operator %q does not accept bool operands", op)
	}
	if a.Kind == value.KindString || b.Kind == value.KindString {
		return value.Value{}, evalErrorf("format: operator %q does not accept string operands", op)
	}
	if a.Kind == value.KindInt && b.Kind == value.KindInt {
		return applyIntArithmetic(op, a.Int, b.Int)
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		return value.Value{}, evalErrorf("format: operator %q requires numeric operands, got %s and %s", op, a.Kind, b.Kind)
	}
	switch op {
	case "+":
		return value.Float(af + bf), nil
	case "-":
		return value.Float(af - bf), nil
	case "*":
		return value.Float(af * bf), nil
	case "/":
		if bf == 0 {
			return value.Value{}, evalErrorf("format: division by zero")
		}
		return value.Float(af / bf), nil
	default:
		return value.Value{}, evalErrorf("format: unknown operator %q", op)
	}
}

func asFloat(v value.Value) (float64, bool) {
	switch v.Kind {
	case value.KindInt:
		return float64(v.Int), true
	case value.KindFloat:
		return v.Float, true
	default:
		return 0, false
	}
}

func applyIntArithmetic(op string, a, b int64) (value.Value, error) {
	switch op {
	case "+":
		sum := a + b
		if (b > 0 && sum < a) || (b < 0 && sum > a) {
			return value.Value{}, evalErrorf("format: integer overflow in %d + %d", a, b)
		}
		return value.Int(sum), nil
	case "-":
		diff := a - b
		if (b < 0 && diff < a) || (b > 0 && diff > a) {
			return value.Value{}, evalErrorf("format: integer overflow in %d - %d", a, b)
		}
		return value.Int(diff), nil
	case "*":
		if a == 0 || b == 0 {
			return value.Int(0), nil
		}
		prod := a * b
		if prod/b != a {
			return value.Value{}, evalErrorf("format: integer overflow in %d * %d", a, b)
		}
		return value.Int(prod), nil
	case "/":
		if b == 0 {
			return value.Value{}, evalErrorf("format: division by zero")
		}
		if a%b == 0 {
			return value.Int(a / b), nil
		}
		return value.Float(float64(a) / float64(b)), nil
	default:
		return value.Value{}, evalErrorf("format: unknown operator %q", op)
	}
}

// renderValue renders a Value per its FormatSpec. Non-numeric values ignore
// Thousands/Precision and render by their natural string form, except when
// Type requests a specific date layout. Numeric types: "f" forces
// fixed-point (default two fractional digits), "d" truncates to an integer.
func renderValue(v value.Value, spec FormatSpec) string {
	if v.IsNull() {
		return ""
	}
	switch spec.Type {
	case "date":
		if v.Kind == value.KindDateTime {
			return v.Time.Format("2006-01-02")
		}
	case "datetime":
		if v.Kind == value.KindDateTime {
			return v.Time.Format(time.RFC3339)
		}
	case "currency":
		if f, ok := asFloat(v); ok {
			return humanize.FormatFloat("#,###.##", f)
		}
	}

	if v.Kind != value.KindInt && v.Kind != value.KindFloat {
		return v.String()
	}

	f, _ := asFloat(v)
	var numStr string
	switch {
	case spec.Type == "d":
		numStr = strconv.FormatInt(int64(f), 10)
	case spec.Type == "f":
		precision := 2
		if spec.HasPrecision {
			precision = spec.Precision
		}
		numStr = strconv.FormatFloat(f, 'f', precision, 64)
	case spec.HasPrecision:
		numStr = strconv.FormatFloat(f, 'f', spec.Precision, 64)
	default:
		numStr = v.FormatNumber()
	}
	if !spec.Thousands {
		return numStr
	}
	return groupThousands(numStr)
}

func groupThousands(numStr string) string {
	neg := strings.HasPrefix(numStr, "-")
	if neg {
		numStr = numStr[1:]
	}
	intPart, fracPart, hasFrac := strings.Cut(numStr, ".")
	grouped := humanize.Comma(mustAtoi64(intPart))
	if hasFrac {
		grouped += "." + fracPart
	}
	if neg {
		grouped = "-" + grouped
	}
	return grouped
}

func mustAtoi64(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
