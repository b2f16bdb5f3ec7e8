// Command iamgraph bootstraps the IAM sample database on a Neo4j server and runs the
// sample requests, the quickstart flow, bulk ingestion, dataset generation and the
// read API against it.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	a := newApp()
	root := newRootCmd(a)

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", r)
			if a.verbose {
				fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", debug.Stack())
			}
			os.Exit(ExitError)
		}
	}()

	if err := Execute(context.Background(), root); err != nil {
		os.Exit(HandleError(root, err))
	}
}
