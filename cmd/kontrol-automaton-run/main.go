// Command kontrol-automaton-run is the helper subcommand a JS-manifest
// automaton state's synthesized shell snippet invokes: it runs one named
// top-level function from a script inside a fresh goja VM and prints its
// return value to stdout, mirroring what a shell state's own stdout would
// otherwise carry.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/wisbric/kontrol/pkg/automaton"
)

func main() {
	scriptPath := flag.String("script", "", "path to the JS manifest source")
	funcName := flag.String("func", "", "top-level function to invoke")
	flag.Parse()

	if *scriptPath == "" || *funcName == "" {
		fmt.Fprintln(os.Stderr, "error: -script and -func are required")
		os.Exit(1)
	}

	out, err := automaton.RunFunc(*scriptPath, *funcName, os.Getenv("INPUT"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(out)
}
