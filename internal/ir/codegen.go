// Package ir lowers Calc's ast.Expr tree to LLVM IR, one gen<X> method per
// node kind, the same shape as the teacher compiler's one gen<Instruction>
// method per opcode, just targeting an llvm.Builder instead of an
// assembly-text buffer.
package ir

import (
	"fmt"

	"tinygo.org/x/go-llvm"

	"calc/internal/ast"
	"calc/internal/calcerr"
	"calc/internal/stack"
)

// Generator owns one LLVM context, builder, and "current" module, and
// threads them through code generation the way the vslc-derived gen()
// functions thread (b llvm.Builder, m llvm.Module, fun llvm.Value) through
// every call. namedValues holds the stack-slot alloca for each in-scope
// variable; it is cleared and repopulated at the start of every function.
type Generator struct {
	ctx     llvm.Context
	builder llvm.Builder
	module  llvm.Module

	namedValues map[string]llvm.Value
	protos      map[string]*ast.Prototype

	fpm llvm.PassManager
}

var doubleType = llvm.DoubleType()

// New creates a Generator with a fresh context and a module named name.
func New(name string) *Generator {
	ctx := llvm.NewContext()
	g := &Generator{
		ctx:         ctx,
		builder:     ctx.NewBuilder(),
		namedValues: make(map[string]llvm.Value),
		protos:      make(map[string]*ast.Prototype),
	}
	g.resetModule(name)
	return g
}

func (g *Generator) resetModule(name string) {
	g.module = g.ctx.NewModule(name)
	g.fpm = llvm.NewFunctionPassManagerForModule(g.module)
	g.fpm.AddInstructionCombiningPass()
	g.fpm.AddReassociatePass()
	g.fpm.AddGVNPass()
	g.fpm.AddCFGSimplificationPass()
	g.fpm.AddPromoteMemoryToRegisterPass()
	g.fpm.InitializeFunc()
}

// Module returns the module currently being built.
func (g *Generator) Module() llvm.Module {
	return g.module
}

// NewModuleInContext creates and returns a new, empty module in g's LLVM
// context without touching g.module. It exists for the one case that needs
// a module entirely outside the install/reset lifecycle of Module/Reset: an
// execution engine's initial resident module (see jit.New), which must
// never be the same module object CodegenFunction writes into.
func (g *Generator) NewModuleInContext(name string) llvm.Module {
	return g.ctx.NewModule(name)
}

// Reset drops g's reference to the current module without disposing it (the
// caller is expected to have handed it to the JIT already, per spec.md
// section 6.3's install-then-recreate lifecycle, and the JIT owns it from
// then on) and starts a fresh, empty one with the given name. Previously
// declared prototypes, including those of derivative functions, carry over
// so later definitions can still call earlier ones by name.
func (g *Generator) Reset(name string) {
	g.fpm.Dispose()
	g.resetModule(name)
}

// Dispose releases the builder and context. Call once, when the Generator
// is no longer needed.
func (g *Generator) Dispose() {
	g.fpm.Dispose()
	g.module.Dispose()
	g.builder.Dispose()
	g.ctx.Dispose()
}

// DeclarePrototype declares (or returns the existing declaration of) proto
// in the current module, and remembers it so later calls can resolve it by
// name even across a module Reset.
func (g *Generator) DeclarePrototype(proto *ast.Prototype) (llvm.Value, error) {
	g.protos[proto.Name] = proto

	if existing := g.module.NamedFunction(proto.Name); !existing.IsNil() {
		return existing, nil
	}

	params := make([]llvm.Type, len(proto.Params))
	for i := range params {
		params[i] = doubleType
	}
	ftyp := llvm.FunctionType(doubleType, params, false)
	fn := llvm.AddFunction(g.module, proto.Name, ftyp)
	for i, p := range proto.Params {
		fn.Param(i).SetName(p)
	}
	return fn, nil
}

// CodegenFunction emits fn's prototype and body as an LLVM function,
// populates namedValues with a fresh alloca per formal parameter, and runs
// the function pass pipeline over the result before returning it.
func (g *Generator) CodegenFunction(fn *ast.Function) (llvm.Value, error) {
	llvmFn, err := g.DeclarePrototype(fn.Proto)
	if err != nil {
		return llvm.Value{}, err
	}
	if llvmFn.BasicBlocksCount() != 0 {
		return llvm.Value{}, fmt.Errorf("%w: function %q already has a body", calcerr.ErrNameResolution, fn.Proto.Name)
	}

	entry := llvm.AddBasicBlock(llvmFn, "entry")
	g.builder.SetInsertPointAtEnd(entry)

	g.namedValues = make(map[string]llvm.Value, len(fn.Proto.Params))
	for i, p := range fn.Proto.Params {
		alloca := g.createEntryBlockAlloca(llvmFn, p)
		g.builder.CreateStore(llvmFn.Param(i), alloca)
		g.namedValues[p] = alloca
	}

	body, err := g.codegenExpr(fn.Body)
	if err != nil {
		llvmFn.EraseFromParentAsFunction()
		return llvm.Value{}, err
	}
	g.builder.CreateRet(body)

	g.fpm.RunFunc(llvmFn)
	return llvmFn, nil
}

// createEntryBlockAlloca allocates a stack slot for name in fn's entry
// block, regardless of where g.builder's insertion point currently sits.
// The classic Kaleidoscope technique: a temporary builder is positioned
// before the entry block's first instruction (or at the block's end if it
// has none yet) so every alloca for a given function ends up grouped at the
// top of entry. This is load-bearing, not cosmetic: mem2reg only promotes
// an alloca that lives in the entry block, and an alloca placed inside a
// loop or branch body would otherwise be re-executed once per enclosing
// iteration instead of once per function call.
func (g *Generator) createEntryBlockAlloca(fn llvm.Value, name string) llvm.Value {
	tmp := g.ctx.NewBuilder()
	defer tmp.Dispose()

	entry := fn.EntryBasicBlock()
	if first := entry.FirstInstruction(); !first.IsNil() {
		tmp.SetInsertPointBefore(first)
	} else {
		tmp.SetInsertPointAtEnd(entry)
	}
	return tmp.CreateAlloca(doubleType, name)
}

func (g *Generator) codegenExpr(e ast.Expr) (llvm.Value, error) {
	switch n := e.(type) {
	case *ast.Number:
		return g.genNumber(n), nil
	case *ast.Variable:
		return g.genVariable(n)
	case *ast.Binary:
		return g.genBinary(n)
	case *ast.Call:
		return g.genCall(n)
	case *ast.If:
		return g.genIf(n)
	case *ast.For:
		return g.genFor(n)
	default:
		return llvm.Value{}, fmt.Errorf("%w: no codegen rule for node type %T", calcerr.ErrNameResolution, e)
	}
}

func (g *Generator) genNumber(n *ast.Number) llvm.Value {
	return llvm.ConstFloat(doubleType, n.Value)
}

func (g *Generator) genVariable(n *ast.Variable) (llvm.Value, error) {
	alloca, ok := g.namedValues[n.Name]
	if !ok {
		return llvm.Value{}, fmt.Errorf("%w: unknown variable %q", calcerr.ErrNameResolution, n.Name)
	}
	return g.builder.CreateLoad(alloca, n.Name), nil
}

func (g *Generator) genBinary(n *ast.Binary) (llvm.Value, error) {
	if n.Op == ast.OpPow {
		return g.genCall(&ast.Call{Callee: "pow", Args: []ast.Expr{n.Left, n.Right}})
	}

	l, err := g.codegenExpr(n.Left)
	if err != nil {
		return llvm.Value{}, err
	}
	r, err := g.codegenExpr(n.Right)
	if err != nil {
		return llvm.Value{}, err
	}

	switch n.Op {
	case ast.OpAdd:
		return g.builder.CreateFAdd(l, r, "addtmp"), nil
	case ast.OpSub:
		return g.builder.CreateFSub(l, r, "subtmp"), nil
	case ast.OpMul:
		return g.builder.CreateFMul(l, r, "multmp"), nil
	case ast.OpDiv:
		return g.builder.CreateFDiv(l, r, "divtmp"), nil
	case ast.OpLt:
		cmp := g.builder.CreateFCmp(llvm.FloatULT, l, r, "cmptmp")
		return g.builder.CreateUIToFP(cmp, doubleType, "booltmp"), nil
	default:
		return llvm.Value{}, fmt.Errorf("%w: unknown binary operator %q", calcerr.ErrNameResolution, n.Op)
	}
}

func (g *Generator) genCall(n *ast.Call) (llvm.Value, error) {
	proto, ok := g.protos[n.Callee]
	if !ok {
		return llvm.Value{}, fmt.Errorf("%w: unknown function referenced: %q", calcerr.ErrNameResolution, n.Callee)
	}
	if len(proto.Params) != len(n.Args) {
		return llvm.Value{}, fmt.Errorf("%w: %q expects %d argument(s), got %d", calcerr.ErrArity, n.Callee, len(proto.Params), len(n.Args))
	}

	callee := g.module.NamedFunction(n.Callee)
	if callee.IsNil() {
		var err error
		callee, err = g.DeclarePrototype(proto)
		if err != nil {
			return llvm.Value{}, err
		}
	}

	args := make([]llvm.Value, len(n.Args))
	for i, a := range n.Args {
		v, err := g.codegenExpr(a)
		if err != nil {
			return llvm.Value{}, err
		}
		args[i] = v
	}
	return g.builder.CreateCall(callee, args, "calltmp"), nil
}

func (g *Generator) genIf(n *ast.If) (llvm.Value, error) {
	fn := g.builder.GetInsertBlock().Parent()

	condV, err := g.codegenExpr(n.Cond)
	if err != nil {
		return llvm.Value{}, err
	}
	condBool := g.builder.CreateFCmp(llvm.FloatONE, condV, llvm.ConstFloat(doubleType, 0), "ifcond")

	thenBB := llvm.AddBasicBlock(fn, "then")
	elseBB := llvm.AddBasicBlock(fn, "else")
	mergeBB := llvm.AddBasicBlock(fn, "ifcont")
	g.builder.CreateCondBr(condBool, thenBB, elseBB)

	g.builder.SetInsertPointAtEnd(thenBB)
	thenV, err := g.codegenExpr(n.Then)
	if err != nil {
		return llvm.Value{}, err
	}
	g.builder.CreateBr(mergeBB)
	thenEndBB := g.builder.GetInsertBlock()

	g.builder.SetInsertPointAtEnd(elseBB)
	elseV, err := g.codegenExpr(n.Else)
	if err != nil {
		return llvm.Value{}, err
	}
	g.builder.CreateBr(mergeBB)
	elseEndBB := g.builder.GetInsertBlock()

	g.builder.SetInsertPointAtEnd(mergeBB)
	phi := g.builder.CreatePHI(doubleType, "iftmp")
	phi.AddIncoming([]llvm.Value{thenV, elseV}, []llvm.BasicBlock{thenEndBB, elseEndBB})
	return phi, nil
}

// genFor lowers a for-loop to a preheader/loop/after block structure. The
// loop variable gets its own alloca in the function entry block; a
// previously bound variable of the same name is pushed onto shadow and
// restored once the loop exits, so nested loops over the same name don't
// clobber an enclosing one.
func (g *Generator) genFor(n *ast.For) (llvm.Value, error) {
	fn := g.builder.GetInsertBlock().Parent()

	startV, err := g.codegenExpr(n.Start)
	if err != nil {
		return llvm.Value{}, err
	}

	alloca := g.createEntryBlockAlloca(fn, n.Var)
	g.builder.CreateStore(startV, alloca)

	loopBB := llvm.AddBasicBlock(fn, "loop")
	g.builder.CreateBr(loopBB)
	g.builder.SetInsertPointAtEnd(loopBB)

	shadow := stack.New[llvm.Value]()
	if old, ok := g.namedValues[n.Var]; ok {
		shadow.Push(old)
	}
	g.namedValues[n.Var] = alloca

	if _, err := g.codegenExpr(n.Body); err != nil {
		return llvm.Value{}, err
	}

	stepV, err := g.codegenExpr(n.Step)
	if err != nil {
		return llvm.Value{}, err
	}
	curV := g.builder.CreateLoad(alloca, n.Var)
	nextV := g.builder.CreateFAdd(curV, stepV, "nextvar")
	g.builder.CreateStore(nextV, alloca)

	endV, err := g.codegenExpr(n.End)
	if err != nil {
		return llvm.Value{}, err
	}
	endCond := g.builder.CreateFCmp(llvm.FloatONE, endV, llvm.ConstFloat(doubleType, 0), "loopcond")

	afterBB := llvm.AddBasicBlock(fn, "afterloop")
	g.builder.CreateCondBr(endCond, loopBB, afterBB)
	g.builder.SetInsertPointAtEnd(afterBB)

	if old, err := shadow.Pop(); err == nil {
		g.namedValues[n.Var] = old
	} else {
		delete(g.namedValues, n.Var)
	}

	return llvm.ConstFloat(doubleType, 0), nil
}
