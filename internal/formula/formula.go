// Package formula compiles and evaluates ratio arithmetic over named inputs.
//
// Expressions use Go's expression grammar restricted to numeric literals,
// identifiers, parentheses, unary +/-, the binary operators + - * /, and the
// functions abs, min and max. Nothing else is accepted, so evaluating an
// expression can only ever combine the values it is given.
package formula

import (
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
)

// ErrUndefined is returned when evaluation divides by zero or leaves the
// real numbers.
var ErrUndefined = eris.New("formula: undefined result")

var funcs = map[string]int{
	"abs": 1,
	"min": -2,
	"max": -2,
}

// Expr is a compiled, validated expression.
type Expr struct {
	src      string
	root     ast.Expr
	vars     []string
	additive bool
}

// Compile parses src and rejects any construct outside the arithmetic subset.
func Compile(src string) (*Expr, error) {
	root, err := parser.ParseExpr(src)
	if err != nil {
		return nil, eris.Wrapf(err, "formula: parse %q", src)
	}
	c := &checker{seen: make(map[string]bool), additive: true}
	if err := c.check(root); err != nil {
		return nil, eris.Wrapf(err, "formula: %q", src)
	}
	vars := make([]string, 0, len(c.seen))
	for v := range c.seen {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return &Expr{src: src, root: root, vars: vars, additive: c.additive}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string) *Expr {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

// String returns the source text.
func (e *Expr) String() string { return e.src }

// Vars returns the sorted distinct identifiers the expression reads.
func (e *Expr) Vars() []string { return append([]string(nil), e.vars...) }

// Additive reports whether the expression only adds and subtracts.
func (e *Expr) Additive() bool { return e.additive }

// Eval evaluates the expression against vars.
func (e *Expr) Eval(vars map[string]float64) (float64, error) {
	v, err := eval(e.root, vars)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrUndefined
	}
	return v, nil
}

type checker struct {
	seen     map[string]bool
	additive bool
}

func (c *checker) check(n ast.Expr) error {
	switch x := n.(type) {
	case *ast.BasicLit:
		if x.Kind != token.INT && x.Kind != token.FLOAT {
			return eris.Errorf("unsupported literal %s", x.Value)
		}
		if _, err := strconv.ParseFloat(x.Value, 64); err != nil {
			return eris.Wrapf(err, "bad number %s", x.Value)
		}
		return nil
	case *ast.Ident:
		c.seen[x.Name] = true
		return nil
	case *ast.ParenExpr:
		return c.check(x.X)
	case *ast.UnaryExpr:
		if x.Op != token.ADD && x.Op != token.SUB {
			return eris.Errorf("unsupported unary operator %s", x.Op)
		}
		return c.check(x.X)
	case *ast.BinaryExpr:
		switch x.Op {
		case token.ADD, token.SUB:
		case token.MUL, token.QUO:
			c.additive = false
		default:
			return eris.Errorf("unsupported operator %s", x.Op)
		}
		if err := c.check(x.X); err != nil {
			return err
		}
		return c.check(x.Y)
	case *ast.CallExpr:
		fn, ok := x.Fun.(*ast.Ident)
		if !ok {
			return eris.New("only plain function calls are allowed")
		}
		arity, ok := funcs[fn.Name]
		if !ok {
			return eris.Errorf("unknown function %s", fn.Name)
		}
		if x.Ellipsis.IsValid() {
			return eris.Errorf("variadic call to %s", fn.Name)
		}
		if (arity > 0 && len(x.Args) != arity) || (arity < 0 && len(x.Args) < -arity) {
			return eris.Errorf("wrong argument count for %s", fn.Name)
		}
		c.additive = false
		for _, a := range x.Args {
			if err := c.check(a); err != nil {
				return err
			}
		}
		return nil
	default:
		return eris.Errorf("unsupported expression %T", n)
	}
}

func eval(n ast.Expr, vars map[string]float64) (float64, error) {
	switch x := n.(type) {
	case *ast.BasicLit:
		return strconv.ParseFloat(x.Value, 64)
	case *ast.Ident:
		v, ok := vars[x.Name]
		if !ok {
			return 0, eris.Errorf("formula: unbound variable %q", x.Name)
		}
		return v, nil
	case *ast.ParenExpr:
		return eval(x.X, vars)
	case *ast.UnaryExpr:
		v, err := eval(x.X, vars)
		if err != nil {
			return 0, err
		}
		if x.Op == token.SUB {
			return -v, nil
		}
		return v, nil
	case *ast.BinaryExpr:
		l, err := eval(x.X, vars)
		if err != nil {
			return 0, err
		}
		r, err := eval(x.Y, vars)
		if err != nil {
			return 0, err
		}
		switch x.Op {
		case token.ADD:
			return l + r, nil
		case token.SUB:
			return l - r, nil
		case token.MUL:
			return l * r, nil
		default:
			if r == 0 {
				return 0, ErrUndefined
			}
			return l / r, nil
		}
	case *ast.CallExpr:
		args := make([]float64, len(x.Args))
		for i, a := range x.Args {
			v, err := eval(a, vars)
			if err != nil {
				return 0, err
			}
			args[i] = v
		}
		switch x.Fun.(*ast.Ident).Name {
		case "abs":
			return math.Abs(args[0]), nil
		case "min":
			m := args[0]
			for _, v := range args[1:] {
				m = math.Min(m, v)
			}
			return m, nil
		default:
			m := args[0]
			for _, v := range args[1:] {
				m = math.Max(m, v)
			}
			return m, nil
		}
	}
	return 0, eris.Errorf("formula: unsupported expression %T", n)
}
