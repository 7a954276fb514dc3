package format

import (
	"fmt"
	"strings"

	"dynamics-transfer/internal/fieldpath"
	"dynamics-transfer/internal/value"
)

// exprParser is a recursive-descent parser over the token stream produced
// by exprLexer. Precedence, low to high:
//
//	ternary -> coalesce -> comparison -> additive -> multiplicative -> unary -> primary
//
// A ternary's ':' is always paired with the '?' that opened it, so once
// parseExpr returns, any remaining ':' in the bracket belongs to the
// trailing format spec rather than the expression grammar.
type exprParser struct {
	lex  *exprLexer
	cur  token
	errd error
}

func newExprParser(src string) (*exprParser, error) {
	p := &exprParser{lex: newExprLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *exprParser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

// parseExpr parses a full expression and leaves the cursor on the first
// token it didn't consume (tokColon introducing a format spec, or tokEOF).
func (p *exprParser) parseExpr() (Expr, error) {
	return p.parseTernary()
}

func (p *exprParser) parseTernary() (Expr, error) {
	cond, err := p.parseCoalesce()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokQuestion {
		return cond, nil
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	then, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokColon {
		return nil, fmt.Errorf("format: expected ':' in ternary expression")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	elseExpr, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	return TernaryExpr{Cond: cond, Then: then, Else: elseExpr}, nil
}

func (p *exprParser) parseCoalesce() (Expr, error) {
	first, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokCoalesce {
		return first, nil
	}
	operands := []Expr{first}
	for p.cur.kind == tokCoalesce {
		if err := p.advance(); err != nil {
			return nil, err
		}
		next, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}
	return CoalesceExpr{Operands: operands}, nil
}

var comparisonOps = map[tokenKind]string{
	tokEq: "==", tokNe: "!=", tokLt: "<", tokLe: "<=", tokGt: ">", tokGe: ">=",
}

func (p *exprParser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	op, ok := comparisonOps[p.cur.kind]
	if !ok {
		return left, nil
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return BinaryExpr{Op: op, Left: left, Right: right}, nil
}

func (p *exprParser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokPlus || p.cur.kind == tokMinus {
		op := "+"
		if p.cur.kind == tokMinus {
			op = "-"
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *exprParser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokStar || p.cur.kind == tokSlash {
		op := "*"
		if p.cur.kind == tokSlash {
			op = "/"
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *exprParser) parseUnary() (Expr, error) {
	if p.cur.kind == tokMinus {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return UnaryExpr{Op: "-", Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (Expr, error) {
	switch p.cur.kind {
	case tokNumber:
		n := p.cur
		if err := p.advance(); err != nil {
			return nil, err
		}
		if n.isInt {
			return LiteralExpr{Value: value.Int(int64(n.num))}, nil
		}
		return LiteralExpr{Value: value.Float(n.num)}, nil
	case tokString:
		s := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return LiteralExpr{Value: value.String(s)}, nil
	case tokTrue:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return LiteralExpr{Value: value.Bool(true)}, nil
	case tokFalse:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return LiteralExpr{Value: value.Bool(false)}, nil
	case tokIdent:
		name := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if !strings.Contains(name, ".") && name == "null" {
			return LiteralExpr{Value: value.Null()}, nil
		}
		fp, err := fieldpath.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("format: invalid field reference %q: %w", name, err)
		}
		return FieldRefExpr{Path: fp}, nil
	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokRParen {
			return nil, fmt.Errorf("format: expected ')'")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil
	default:
		return nil, fmt.Errorf("format: unexpected token in expression")
	}
}

// formatSpecSuffix returns the raw text following a trailing, unconsumed
// ':' once parseExpr stops. Because the lexer only ever advances past a
// colon as it reads it, l.pos already sits just after that colon.
func (p *exprParser) formatSpecSuffix() (string, bool) {
	if p.cur.kind != tokColon {
		return "", p.cur.kind == tokEOF
	}
	return string(p.lex.src[p.lex.pos:]), true
}
