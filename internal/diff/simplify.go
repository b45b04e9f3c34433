package diff

import "calc/internal/ast"

// Simplify applies a small set of peephole rewrites to e: constant folding
// plus the identity-element rules for +, -, *, and /. It never looks past a
// single node's immediate children, so it will not catch every
// simplification a full algebra system would, but it keeps the derivative
// of anything but a trivial function from growing unreadably large.
func Simplify(e ast.Expr) ast.Expr {
	switch n := e.(type) {
	case *ast.Binary:
		left := Simplify(n.Left)
		right := Simplify(n.Right)
		return simplifyBinary(n.Op, left, right)
	case *ast.If:
		return &ast.If{Cond: n.Cond.Clone(), Then: Simplify(n.Then), Else: Simplify(n.Else)}
	case *ast.For:
		return &ast.For{Var: n.Var, Start: n.Start.Clone(), End: n.End.Clone(), Step: n.Step.Clone(), Body: Simplify(n.Body)}
	default:
		return e
	}
}

func numberOf(e ast.Expr) (float64, bool) {
	if n, ok := e.(*ast.Number); ok {
		return n.Value, true
	}
	return 0, false
}

func simplifyBinary(op ast.BinaryOp, left, right ast.Expr) ast.Expr {
	if lv, lok := numberOf(left); lok {
		if rv, rok := numberOf(right); rok {
			if folded, ok := foldConstants(op, lv, rv); ok {
				return &ast.Number{Value: folded}
			}
		}
	}

	switch op {
	case ast.OpAdd:
		if lv, ok := numberOf(left); ok && lv == 0 {
			return right
		}
		if rv, ok := numberOf(right); ok && rv == 0 {
			return left
		}
	case ast.OpSub:
		if rv, ok := numberOf(right); ok && rv == 0 {
			return left
		}
	case ast.OpMul:
		if lv, ok := numberOf(left); ok {
			if lv == 0 {
				return &ast.Number{Value: 0}
			}
			if lv == 1 {
				return right
			}
		}
		if rv, ok := numberOf(right); ok {
			if rv == 0 {
				return &ast.Number{Value: 0}
			}
			if rv == 1 {
				return left
			}
		}
	case ast.OpDiv:
		if rv, ok := numberOf(right); ok && rv == 1 {
			return left
		}
	}

	return &ast.Binary{Op: op, Left: left, Right: right}
}

func foldConstants(op ast.BinaryOp, l, r float64) (float64, bool) {
	switch op {
	case ast.OpAdd:
		return l + r, true
	case ast.OpSub:
		return l - r, true
	case ast.OpMul:
		return l * r, true
	case ast.OpDiv:
		if r == 0 {
			return 0, false
		}
		return l / r, true
	default:
		return 0, false
	}
}
