package repl

import (
	"bytes"
	"strings"
	"testing"

	"calc/internal/driver"
)

// Readline itself needs a real terminal (or a pty) to construct an
// Instance, so these tests drive the package's dispatch logic directly
// against a bare driver.Driver and plain bytes.Buffers, the way
// driver_test.go drives the driver.

type nopDiags struct{}

func (nopDiags) IR(string)           {}
func (nopDiags) Info(string, ...any) {}

func newTestSetup(t *testing.T) (*driver.Driver, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	drv, err := driver.New(nopDiags{})
	if err != nil {
		t.Fatalf("unexpected error creating driver: %v", err)
	}
	t.Cleanup(drv.Close)
	return drv, &bytes.Buffer{}, &bytes.Buffer{}
}

func TestDispatchTopLevelExpressionPrintsResult(t *testing.T) {
	drv, out, errOut := newTestSetup(t)

	dispatch(drv, out, errOut, "(5+2)*8")

	if errOut.Len() != 0 {
		t.Fatalf("expected no error output, got %q", errOut.String())
	}
	if !strings.Contains(out.String(), "Evaluated to 56") {
		t.Fatalf("expected output to contain 'Evaluated to 56', got %q", out.String())
	}
}

func TestDispatchDefinitionThenCallOnSeparateLines(t *testing.T) {
	drv, out, errOut := newTestSetup(t)

	dispatch(drv, out, errOut, "def sq(x) x*x")
	if errOut.Len() != 0 {
		t.Fatalf("expected no error output defining sq, got %q", errOut.String())
	}
	if !drv.HasDerivative("dsq_dx") {
		t.Fatalf("expected 'def' to auto-register dsq_dx")
	}

	dispatch(drv, out, errOut, "sq(7)")
	if !strings.Contains(out.String(), "Evaluated to 49") {
		t.Fatalf("expected output to contain 'Evaluated to 49', got %q", out.String())
	}
}

func TestDispatchMultipleFormsSeparatedBySemicolon(t *testing.T) {
	drv, out, errOut := newTestSetup(t)

	dispatch(drv, out, errOut, "extern cbrt(x); cbrt(8)")

	if errOut.Len() != 0 {
		t.Fatalf("expected no error output, got %q", errOut.String())
	}
	if _, ok := drv.Prototype("cbrt"); !ok {
		t.Fatalf("expected cbrt to be declared")
	}
	// cbrt is only declared in Calc; the JIT resolves it against the host
	// process's libm at call time, the same way it resolves sin.
	if !strings.Contains(out.String(), "Evaluated to 2") {
		t.Fatalf("expected output to contain 'Evaluated to 2', got %q", out.String())
	}
}

func TestDispatchParseErrorDoesNotStopTheRestOfTheLine(t *testing.T) {
	drv, out, errOut := newTestSetup(t)

	dispatch(drv, out, errOut, "1 + ; 2 + 2")

	if errOut.Len() == 0 {
		t.Fatalf("expected an error to be reported for the malformed first form")
	}
	if !strings.Contains(out.String(), "Evaluated to 4") {
		t.Fatalf("expected the well-formed second form to still evaluate, got %q", out.String())
	}
}
