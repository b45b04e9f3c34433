// Package jit wraps tinygo.org/x/go-llvm's classic MCJIT ExecutionEngine
// behind the four operations spec.md section 6.3 asks of the IR/JIT
// collaborator: install a module, look a symbol up, invoke it, and release
// it again. The underlying binding only exposes MCJIT, not ORCv2's
// resource-tracker API, so ResourceTracker here is a thin wrapper that
// remembers which llvm.Module it installed and removes exactly that module
// on Release - a deliberate simplification, recorded in DESIGN.md.
package jit

import (
	"fmt"
	"sync"

	"tinygo.org/x/go-llvm"

	"calc/internal/calcerr"
)

func init() {
	llvm.LinkInMCJIT()
	llvm.InitializeNativeTarget()
	llvm.InitializeNativeAsmPrinter()
}

// JIT owns one LLVM ExecutionEngine. It is not safe for concurrent use from
// multiple goroutines without external synchronization beyond what mu
// provides for Install/Release bookkeeping.
type JIT struct {
	mu     sync.Mutex
	engine llvm.ExecutionEngine
	active map[*ResourceTracker]bool
}

// ResourceTracker corresponds to an installed module: spec.md's "create a
// tracker, install a module under it, look symbols up through it, release
// it to reclaim the module's code" lifecycle.
type ResourceTracker struct {
	module llvm.Module
}

// New creates a JIT by taking ownership of module as its first installed
// module. Building a bare llvm.ExecutionEngine needs at least one module to
// attach to; callers that have nothing to install yet should pass an empty
// module created in the same context they'll use for later modules.
func New(module llvm.Module) (*JIT, error) {
	engine, err := llvm.NewMCJITCompiler(module, llvm.NewMCJITCompilerOptions())
	if err != nil {
		return nil, fmt.Errorf("%w: creating execution engine: %s", calcerr.ErrJIT, err)
	}
	return &JIT{engine: engine, active: make(map[*ResourceTracker]bool)}, nil
}

// Install hands module's code and global state to the JIT and returns a
// ResourceTracker scoped to it. The caller must not use module directly
// again; all further interaction goes through the returned tracker.
func (j *JIT) Install(module llvm.Module) *ResourceTracker {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.engine.AddModule(module)
	rt := &ResourceTracker{module: module}
	j.active[rt] = true
	return rt
}

// Lookup resolves name to a callable function value installed under rt. It
// returns calcerr.ErrJIT if rt has already been released or the symbol
// isn't defined in its module.
func (j *JIT) Lookup(rt *ResourceTracker, name string) (llvm.Value, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.active[rt] {
		return llvm.Value{}, fmt.Errorf("%w: lookup of %q on a released module", calcerr.ErrJIT, name)
	}
	fn := rt.module.NamedFunction(name)
	if fn.IsNil() {
		return llvm.Value{}, fmt.Errorf("%w: symbol %q not found", calcerr.ErrJIT, name)
	}
	return fn, nil
}

// Run invokes the nullary-or-double-args function fn (previously resolved
// via Lookup) with the given float64 arguments and returns its float64
// result. Calc functions are always double -> double (or double^n ->
// double), so the generic-value marshalling only needs to handle floats.
func (j *JIT) Run(fn llvm.Value, args ...float64) float64 {
	j.mu.Lock()
	defer j.mu.Unlock()

	genArgs := make([]llvm.GenericValue, len(args))
	for i, a := range args {
		genArgs[i] = llvm.NewGenericValueFromFloat(llvm.DoubleType(), a)
	}
	result := j.engine.RunFunction(fn, genArgs)
	return result.Float(llvm.DoubleType())
}

// Release removes rt's module from the JIT, reclaiming its compiled code.
// Calling Release twice on the same tracker is a no-op.
func (j *JIT) Release(rt *ResourceTracker) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.active[rt] {
		return nil
	}
	if err := j.engine.RemoveModule(rt.module); err != nil {
		return fmt.Errorf("%w: removing module: %s", calcerr.ErrJIT, err)
	}
	delete(j.active, rt)
	return nil
}

// Dispose tears down the underlying execution engine. Call once, after
// every tracker has been released.
func (j *JIT) Dispose() {
	j.engine.Dispose()
}
