// Package diff implements Calc's symbolic differentiation: a pure,
// structural tree-to-tree transform from an ast.Expr to its partial
// derivative with respect to a named variable. It never mutates its input;
// every rule below works on clones.
package diff

import (
	"fmt"

	"calc/internal/ast"
)

// Registry is the subset of the driver's state the differentiator needs to
// resolve a chain-rule call: the table of known function prototypes (for
// arity and formal-parameter names), and a way to ask whether a given
// derivative function name has already been registered.
type Registry interface {
	Prototype(name string) (*ast.Prototype, bool)
	HasDerivative(name string) bool
}

// DerivativeName returns the name the driver assigns to the derivative of
// function fn with respect to formal parameter param: "d<fn>_d<param>".
func DerivativeName(fn, param string) string {
	return "d" + fn + "_d" + param
}

// Sink receives one human-readable diagnostic string per call; nil is a
// valid Sink (diagnostics are simply discarded).
type Sink func(string)

func (s Sink) emit(format string, args ...any) {
	if s != nil {
		s(fmt.Sprintf(format, args...))
	}
}

// Differentiate returns the partial derivative of e with respect to
// variable, using reg to resolve chain-rule calls to user-defined
// functions. simplify, when true, applies the peephole simplification pass
// described in spec.md section 4.3 to the result.
func Differentiate(e ast.Expr, variable string, reg Registry, diags Sink, simplify bool) ast.Expr {
	d := derive(e, variable, reg, diags)
	if simplify {
		d = Simplify(d)
	}
	return d
}

func derive(e ast.Expr, v string, reg Registry, diags Sink) ast.Expr {
	switch n := e.(type) {
	case *ast.Number:
		return &ast.Number{Value: 0}

	case *ast.Variable:
		if n.Name == v {
			return &ast.Number{Value: 1}
		}
		return &ast.Number{Value: 0}

	case *ast.Binary:
		return deriveBinary(n, v, reg, diags)

	case *ast.Call:
		return deriveCall(n, v, reg, diags)

	case *ast.If:
		return &ast.If{
			Cond: n.Cond.Clone(),
			Then: derive(n.Then, v, reg, diags),
			Else: derive(n.Else, v, reg, diags),
		}

	case *ast.For:
		// The target variable is assumed not to appear in Start, End, or
		// Step (spec.md section 9, open question 2); only the body is
		// differentiated.
		return &ast.For{
			Var:   n.Var,
			Start: n.Start.Clone(),
			End:   n.End.Clone(),
			Step:  n.Step.Clone(),
			Body:  derive(n.Body, v, reg, diags),
		}

	default:
		diags.emit("differentiation error: no rule for node type %T", e)
		return &ast.Number{Value: 0}
	}
}

func deriveBinary(n *ast.Binary, v string, reg Registry, diags Sink) ast.Expr {
	switch n.Op {
	case ast.OpAdd, ast.OpSub:
		return &ast.Binary{
			Op:    n.Op,
			Left:  derive(n.Left, v, reg, diags),
			Right: derive(n.Right, v, reg, diags),
		}

	case ast.OpMul:
		// (L*R)' = L'*R + R'*L
		lPrime := derive(n.Left, v, reg, diags)
		rPrime := derive(n.Right, v, reg, diags)
		return &ast.Binary{
			Op:    ast.OpAdd,
			Left:  &ast.Binary{Op: ast.OpMul, Left: lPrime, Right: n.Right.Clone()},
			Right: &ast.Binary{Op: ast.OpMul, Left: rPrime, Right: n.Left.Clone()},
		}

	case ast.OpDiv:
		// (L/R)' = (L'*R - R'*L) / (R*R)
		lPrime := derive(n.Left, v, reg, diags)
		rPrime := derive(n.Right, v, reg, diags)
		numerator := &ast.Binary{
			Op:    ast.OpSub,
			Left:  &ast.Binary{Op: ast.OpMul, Left: lPrime, Right: n.Right.Clone()},
			Right: &ast.Binary{Op: ast.OpMul, Left: rPrime, Right: n.Left.Clone()},
		}
		denominator := &ast.Binary{Op: ast.OpMul, Left: n.Right.Clone(), Right: n.Right.Clone()}
		return &ast.Binary{Op: ast.OpDiv, Left: numerator, Right: denominator}

	case ast.OpPow:
		// d(L^R) = L^R * (R' * ln(L) + L' * R * (1/L))
		lPrime := derive(n.Left, v, reg, diags)
		rPrime := derive(n.Right, v, reg, diags)
		lnL := &ast.Call{Callee: "log", Args: []ast.Expr{n.Left.Clone()}}
		term1 := &ast.Binary{Op: ast.OpMul, Left: rPrime, Right: lnL}
		term2 := &ast.Binary{
			Op:   ast.OpMul,
			Left: lPrime,
			Right: &ast.Binary{
				Op:   ast.OpMul,
				Left: n.Right.Clone(),
				Right: &ast.Binary{
					Op:    ast.OpDiv,
					Left:  &ast.Number{Value: 1},
					Right: n.Left.Clone(),
				},
			},
		}
		factor := &ast.Binary{Op: ast.OpAdd, Left: term1, Right: term2}
		return &ast.Binary{Op: ast.OpMul, Left: &ast.Binary{Op: ast.OpPow, Left: n.Left.Clone(), Right: n.Right.Clone()}, Right: factor}

	case ast.OpLt:
		// Treated as a piecewise constant: its derivative is neither
		// defined nor needed. We copy the original expression and defer
		// the decision to whatever consumes it (spec.md section 9, open
		// question 1).
		return n.Clone()

	default:
		diags.emit("differentiation error: unknown binary operator %q", n.Op)
		return &ast.Number{Value: 0}
	}
}

func deriveCall(n *ast.Call, v string, reg Registry, diags Sink) ast.Expr {
	proto, ok := reg.Prototype(n.Callee)
	if !ok || len(proto.Params) != len(n.Args) {
		diags.emit("differentiation error: cannot differentiate call to %q (unknown function or arity mismatch)", n.Callee)
		return &ast.Number{Value: 0}
	}

	names := make([]string, len(proto.Params))
	for i, p := range proto.Params {
		name := DerivativeName(n.Callee, p)
		if !reg.HasDerivative(name) {
			diags.emit("differentiation error: derivative %q not yet registered for chain rule on %q", name, n.Callee)
			return &ast.Number{Value: 0}
		}
		names[i] = name
	}

	var sum ast.Expr
	for i, argName := range names {
		argsClone := make([]ast.Expr, len(n.Args))
		for j, a := range n.Args {
			argsClone[j] = a.Clone()
		}
		term := &ast.Binary{
			Op:    ast.OpMul,
			Left:  &ast.Call{Callee: argName, Args: argsClone},
			Right: derive(n.Args[i], v, reg, diags),
		}
		if sum == nil {
			sum = term
		} else {
			sum = &ast.Binary{Op: ast.OpAdd, Left: sum, Right: term}
		}
	}
	if sum == nil {
		return &ast.Number{Value: 0}
	}
	return sum
}
