// This is the main-driver for our calculator.
package main

import (
	"flag"
	"fmt"
	"os"

	"calc/internal/repl"
)

func main() {
	debug := flag.Bool("debug", false, "Print the installed LLVM IR for every def/extern.")
	flag.Parse()

	r, err := repl.New(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting calc: %s\n", err)
		os.Exit(1)
	}
	defer r.Close()

	if err := r.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running calc: %s\n", err)
		os.Exit(1)
	}
}
