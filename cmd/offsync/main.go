// Command offsync runs and inspects the offline-first sync engine.
package main

import (
	"context"
	"os"

	"github.com/roach88/offsync/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
