// Package repl implements Calc's interactive read-evaluate-print loop: read
// a line, tokenize and parse it, branch on the leading token (def / extern
// / ; / expression-start), hand it to the matching driver.Driver entry
// point, and print whatever that entry point produces. Line editing and
// history come from github.com/chzyer/readline; error, IR, and result
// output is colorized with github.com/fatih/color, the same pairing
// akashmaji946-go-mix's repl package and launix-de-memcp's console use for
// their own interactive loops.
package repl

import (
	"fmt"
	"io"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"calc/internal/driver"
	"calc/internal/parser"
	"calc/internal/token"
)

// prompt is kept verbatim from the Kaleidoscope-with-derivatives tutorial
// this system is distilled from (Driver.cpp's MainLoop).
const prompt = "ready> "

var (
	errColor    = color.New(color.FgRed)
	irColor     = color.New(color.FgHiBlack)
	resultColor = color.New(color.FgGreen)
)

// diagnostics adapts a colorized io.Writer pair to the driver.Diagnostics
// interface: installed-IR dumps go to out dimmed, free-form progress
// messages go to out uncolored. IR dumps are gated by debug, the
// teacher main.go's own "-debug" flag shape (skx/math-compiler's
// "insert debug stuff in our generated output"), repurposed here to mean
// "show the installed IR for every def/extern" rather than its original
// "embed debug comments in the assembly" meaning.
type diagnostics struct {
	out   io.Writer
	debug bool
}

func (d diagnostics) IR(text string) {
	if !d.debug {
		return
	}
	irColor.Fprint(d.out, text)
}

func (d diagnostics) Info(format string, args ...any) {
	fmt.Fprintf(d.out, format+"\n", args...)
}

// REPL owns the readline instance and the driver it feeds.
type REPL struct {
	rl     *readline.Instance
	drv    *driver.Driver
	out    io.Writer
	errOut io.Writer
}

// New creates a REPL with a fresh driver.Driver. out receives the
// "Evaluated to <value>" line for top-level expressions; diagnostics
// (parse/codegen/differentiation errors) go to readline's standard error
// stream. debug additionally enables printing the installed IR for every
// def/extern to that same stream.
func New(debug bool) (*REPL, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     "",
		InterruptPrompt: "^C",
		EOFPrompt:       "",
	})
	if err != nil {
		return nil, fmt.Errorf("creating readline instance: %w", err)
	}

	drv, err := driver.New(diagnostics{out: rl.Stderr(), debug: debug})
	if err != nil {
		rl.Close()
		return nil, fmt.Errorf("creating driver: %w", err)
	}

	return &REPL{rl: rl, drv: drv, out: rl.Stdout(), errOut: rl.Stderr()}, nil
}

// Close releases the driver's JIT/LLVM resources and the readline
// instance.
func (r *REPL) Close() {
	r.drv.Close()
	r.rl.Close()
}

// Run reads lines until EOF (Ctrl-D), handling each one. An interrupt
// (Ctrl-C) discards the current line and keeps reading. It returns nil on a
// clean EOF; any other error comes from readline itself.
func (r *REPL) Run() error {
	for {
		line, err := r.rl.Readline()
		switch err {
		case nil:
			r.handleLine(line)
		case readline.ErrInterrupt:
			continue
		case io.EOF:
			return nil
		default:
			return err
		}
	}
}

// handleLine tokenizes and parses line and dispatches it against r's
// driver, writing results and errors to r's configured streams.
func (r *REPL) handleLine(line string) {
	dispatch(r.drv, r.out, r.errOut, line)
}

// dispatch tokenizes and parses line, handling once per top-level form
// found in it (a line may hold several ";"-separated forms): it branches on
// the leading token (def / extern / ; / expression-start) and calls the
// matching driver.Driver entry point, the same MainLoop shape spec.md
// section 4.4 and section 6.2 describe. A parse or driver error is written
// to errOut and the offending token is skipped so the rest of the line, if
// any, still gets a chance to run.
func dispatch(drv *driver.Driver, out, errOut io.Writer, line string) {
	p := parser.New(line)

	for p.Current().Type != token.EOF {
		switch p.Current().Type {
		case token.SEMICOLON:
			p.Advance()

		case token.DEFINITION:
			if err := drv.HandleDefinition(p); err != nil {
				reportError(errOut, err)
				p.Advance()
			}

		case token.EXTERN:
			if err := drv.HandleExtern(p); err != nil {
				reportError(errOut, err)
				p.Advance()
			}

		default:
			result, err := drv.HandleTopLevelExpression(p)
			if err != nil {
				reportError(errOut, err)
				p.Advance()
				continue
			}
			resultColor.Fprintf(out, "Evaluated to %v\n", result)
		}
	}
}

func reportError(errOut io.Writer, err error) {
	errColor.Fprintf(errOut, "%s\n", err)
}
