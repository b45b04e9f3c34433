// Package calcerr holds the sentinel errors for Calc's error taxonomy
// (spec.md section 7). Callers compare against these with errors.Is; the
// human-readable detail is added with fmt.Errorf's %w wrapping at the point
// the error is raised, the same lightweight style the teacher compiler
// uses for its own error paths rather than a hierarchy of error types.
package calcerr

import "errors"

var (
	// ErrLex covers unknown characters and malformed numeric literals.
	ErrLex = errors.New("lex error")

	// ErrParse covers missing delimiters, unexpected tokens, and a missing
	// function name in a prototype.
	ErrParse = errors.New("parse error")

	// ErrNameResolution covers an unknown function or unknown variable
	// encountered during code generation.
	ErrNameResolution = errors.New("name resolution error")

	// ErrArity covers a call, or a derivative chain-rule lookup, whose
	// argument count disagrees with the relevant prototype.
	ErrArity = errors.New("arity error")

	// ErrDifferentiation covers a missing derivative function during
	// chain-rule composition, or an operator the differentiator has no
	// rule for.
	ErrDifferentiation = errors.New("differentiation error")

	// ErrJIT covers module installation or symbol lookup failure.
	ErrJIT = errors.New("JIT error")
)
