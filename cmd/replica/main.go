// Package main is the replica command-line entrypoint.
//
// replica keeps a local SQLite copy of remote entity collections. See
// "replica --help" for the available commands.
package main

import (
	"context"
	"os"

	"github.com/roach88/replica/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
