// Package ast defines the expression-tree node types Calc's parser builds
// and its differentiator and code generator walk.
//
// Expr is a closed sum type: every node implements exprNode (unexported, so
// no type outside this package can masquerade as an Expr) and Clone, which
// deep-copies the node and all of its children. Every Expr owns its
// children exclusively - there is no sharing and no parent pointer, so
// Clone is the only way to reuse a subtree.
package ast

// Expr is any node in a Calc expression tree.
type Expr interface {
	exprNode()
	// Clone returns a deep copy of this node and all of its children.
	Clone() Expr
}

// Number is a floating-point literal.
type Number struct {
	Value float64
}

func (*Number) exprNode() {}

// Clone returns a deep copy of the node.
func (n *Number) Clone() Expr { return &Number{Value: n.Value} }

// Variable is a reference to an identifier: a function parameter or a
// for-loop induction variable.
type Variable struct {
	Name string
}

func (*Variable) exprNode() {}

// Clone returns a deep copy of the node.
func (v *Variable) Clone() Expr { return &Variable{Name: v.Name} }

// BinaryOp identifies a binary operator. '<' yields 0.0 or 1.0.
type BinaryOp string

// The binary operators Calc understands.
const (
	OpAdd BinaryOp = "+"
	OpSub BinaryOp = "-"
	OpMul BinaryOp = "*"
	OpDiv BinaryOp = "/"
	OpPow BinaryOp = "^"
	OpLt  BinaryOp = "<"
)

// Binary is a binary operator expression.
type Binary struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

func (*Binary) exprNode() {}

// Clone returns a deep copy of the node, recursively cloning both operands.
func (b *Binary) Clone() Expr {
	return &Binary{Op: b.Op, Left: b.Left.Clone(), Right: b.Right.Clone()}
}

// Call is a function invocation.
type Call struct {
	Callee string
	Args   []Expr
}

func (*Call) exprNode() {}

// Clone returns a deep copy of the node, recursively cloning every argument.
func (c *Call) Clone() Expr {
	args := make([]Expr, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.Clone()
	}
	return &Call{Callee: c.Callee, Args: args}
}

// If is a conditional expression; both branches are mandatory and produce
// values.
type If struct {
	Cond Expr
	Then Expr
	Else Expr
}

func (*If) exprNode() {}

// Clone returns a deep copy of the node.
func (i *If) Clone() Expr {
	return &If{Cond: i.Cond.Clone(), Then: i.Then.Clone(), Else: i.Else.Clone()}
}

// For is a counted loop. Step is optional; when nil it defaults to 1.0 at
// parse time (the parser always fills it in, so nil should not reach
// codegen, but Clone preserves nil faithfully for completeness). The loop
// always evaluates to 0.0.
type For struct {
	Var   string
	Start Expr
	End   Expr
	Step  Expr
	Body  Expr
}

func (*For) exprNode() {}

// Clone returns a deep copy of the node.
func (f *For) Clone() Expr {
	clone := &For{Var: f.Var, Start: f.Start.Clone(), End: f.End.Clone(), Body: f.Body.Clone()}
	if f.Step != nil {
		clone.Step = f.Step.Clone()
	}
	return clone
}

// Prototype is a function's name and ordered, unique formal parameter list.
// The prototype's argument names are the only names visible inside the
// body of a Function defined with this prototype.
type Prototype struct {
	Name   string
	Params []string
}

// Clone returns a deep copy of the prototype.
func (p *Prototype) Clone() *Prototype {
	params := make([]string, len(p.Params))
	copy(params, p.Params)
	return &Prototype{Name: p.Name, Params: params}
}

// AnonName is the prototype name given to a top-level expression wrapper
// (spec.md section 3).
const AnonName = "__anon_expr"

// Function is a function definition: a prototype plus a body expression.
// A Function whose prototype is named AnonName is a top-level expression
// wrapper that the driver invokes immediately, once, and then discards.
type Function struct {
	Proto *Prototype
	Body  Expr
}

// Clone returns a deep copy of the function, including its prototype and
// its entire body tree.
func (f *Function) Clone() *Function {
	return &Function{Proto: f.Proto.Clone(), Body: f.Body.Clone()}
}

// IsAnonymous reports whether this function is the top-level expression
// wrapper rather than a user def.
func (f *Function) IsAnonymous() bool {
	return f.Proto.Name == "" || f.Proto.Name == AnonName
}
