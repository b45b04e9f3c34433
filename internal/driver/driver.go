// Package driver owns the REPL-visible state that persists across input
// lines: the table of known function prototypes, the registry of
// already-JIT-installed derivative functions, and the IR generator/JIT
// pair that every HandleX call feeds into. It mirrors the teacher-adjacent
// Driver class from the original Kaleidoscope-derived implementation:
// HandleTopLevelExpression/HandleDefinition/HandleExtern, a module that
// gets installed into the JIT and then recreated after every definition and
// top-level expression (an extern only adds a declaration to the current
// module), and a bootstrap set of externs for the math library.
package driver

import (
	"fmt"

	"tinygo.org/x/go-llvm"

	"calc/internal/ast"
	"calc/internal/calcerr"
	"calc/internal/diff"
	"calc/internal/ir"
	"calc/internal/jit"
	"calc/internal/parser"
)

// bootstrapExterns lists the math-library functions Calc declares as
// externs at startup, so a function definition can call them without an
// explicit "extern" line first.
var bootstrapExterns = []*ast.Prototype{
	{Name: "pow", Params: []string{"x1", "x2"}},
	{Name: "log", Params: []string{"x1"}},
	{Name: "sin", Params: []string{"x1"}},
	{Name: "cos", Params: []string{"x1"}},
	{Name: "tan", Params: []string{"x1"}},
	{Name: "exp", Params: []string{"x1"}},
	{Name: "asin", Params: []string{"x1"}},
	{Name: "acos", Params: []string{"x1"}},
	{Name: "atan", Params: []string{"x1"}},
	{Name: "atan2", Params: []string{"x1", "x2"}},
}

// Diagnostics receives the disassembled IR text and free-form progress
// messages the driver produces for each handled form, so the REPL layer
// (or a test) can decide how to present them.
type Diagnostics interface {
	IR(text string)
	Info(format string, args ...any)
}

// Driver ties together parsing, differentiation, code generation, and the
// JIT for one REPL session.
type Driver struct {
	gen *ir.Generator
	jit *jit.JIT

	protos      map[string]*ast.Prototype
	derivatives map[string]bool

	diags Diagnostics

	simplifyDerivatives bool
}

// New creates a Driver with a fresh IR generator and JIT, and declares the
// bootstrap math externs in the generator and the driver's prototype table.
func New(diags Diagnostics) (*Driver, error) {
	gen := ir.New("calculator")

	// jit.New needs some module to construct the execution engine over, but
	// that module must never be the one gen hands out for real codegen: the
	// engine keeps it resident for the program's whole lifetime, while
	// gen.Module()'s contents get installed and the module recreated after
	// every single HandleX call. Give the engine its own throwaway module in
	// the same LLVM context instead of gen's working one.
	j, err := jit.New(gen.NewModuleInContext("calculator-bootstrap"))
	if err != nil {
		gen.Dispose()
		return nil, err
	}

	d := &Driver{
		gen:                 gen,
		jit:                 j,
		protos:              make(map[string]*ast.Prototype),
		derivatives:         make(map[string]bool),
		diags:               diags,
		simplifyDerivatives: true,
	}

	for _, p := range bootstrapExterns {
		if _, err := d.declareExtern(p); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// Close releases the JIT and the IR generator's LLVM context.
func (d *Driver) Close() {
	d.jit.Dispose()
	d.gen.Dispose()
}

// Prototype implements diff.Registry.
func (d *Driver) Prototype(name string) (*ast.Prototype, bool) {
	p, ok := d.protos[name]
	return p, ok
}

// HasDerivative implements diff.Registry.
func (d *Driver) HasDerivative(name string) bool {
	return d.derivatives[name]
}

func (d *Driver) declareExtern(proto *ast.Prototype) (llvm.Value, error) {
	fn, err := d.gen.DeclarePrototype(proto)
	if err != nil {
		return llvm.Value{}, err
	}
	d.protos[proto.Name] = proto
	return fn, nil
}

// HandleExtern parses and declares an "extern" line.
func (d *Driver) HandleExtern(p *parser.Parser) error {
	proto, err := p.ParseExtern()
	if err != nil {
		return err
	}
	if _, err := d.declareExtern(proto); err != nil {
		return err
	}
	d.diags.IR(d.gen.Module().String())
	d.diags.Info("read extern %q", proto.Name)
	return nil
}

// HandleTopLevelExpression parses a bare expression, JIT-compiles it as an
// anonymous nullary function, runs it immediately, reports the result, and
// releases the module.
func (d *Driver) HandleTopLevelExpression(p *parser.Parser) (float64, error) {
	fn, err := p.ParseTopLevelExpr()
	if err != nil {
		return 0, err
	}

	if _, err := d.gen.CodegenFunction(fn); err != nil {
		return 0, err
	}
	d.diags.IR(d.gen.Module().String())

	rt := d.jit.Install(d.gen.Module())
	d.gen.Reset("calculator")

	callee, err := d.jit.Lookup(rt, ast.AnonName)
	if err != nil {
		return 0, err
	}
	result := d.jit.Run(callee)

	if err := d.jit.Release(rt); err != nil {
		return 0, err
	}

	return result, nil
}

// HandleDefinition parses a "def" line, codegens and installs the primary
// function, then for each formal parameter constructs, codegens, and
// installs its partial derivative, registering each one so later calls can
// chain through it.
func (d *Driver) HandleDefinition(p *parser.Parser) error {
	fn, err := p.ParseDefinition()
	if err != nil {
		return err
	}

	if _, err := d.gen.CodegenFunction(fn); err != nil {
		return err
	}
	d.diags.IR(d.gen.Module().String())
	d.protos[fn.Proto.Name] = fn.Proto

	// The primary function's module is handed to the JIT and stays
	// resident; each derivative below is generated into its own fresh
	// module and installed independently.
	d.jit.Install(d.gen.Module())
	d.gen.Reset("calculator")

	for _, param := range fn.Proto.Params {
		derivName := diff.DerivativeName(fn.Proto.Name, param)

		var diagMsgs []string
		body := diff.Differentiate(fn.Body, param, d, func(msg string) {
			diagMsgs = append(diagMsgs, msg)
		}, d.simplifyDerivatives)

		derivFn := &ast.Function{
			Proto: &ast.Prototype{Name: derivName, Params: append([]string(nil), fn.Proto.Params...)},
			Body:  body,
		}

		if _, err := d.gen.CodegenFunction(derivFn); err != nil {
			for _, m := range diagMsgs {
				d.diags.Info("%s", m)
			}
			return fmt.Errorf("%w: generating derivative %q: %s", calcerr.ErrDifferentiation, derivName, err)
		}
		for _, m := range diagMsgs {
			d.diags.Info("%s", m)
		}
		d.diags.IR(d.gen.Module().String())

		d.protos[derivName] = derivFn.Proto
		d.derivatives[derivName] = true

		d.jit.Install(d.gen.Module())
		d.gen.Reset("calculator")
	}

	return nil
}
