// Command featurectl reconciles a feature repository with its registry.
package main

import (
	"context"
	"io"
	"os"

	"featurecore/internal/cli"
)

var exitFunc = os.Exit

func main() {
	exitFunc(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	return cli.Run(context.Background(), args, stdout, stderr)
}
