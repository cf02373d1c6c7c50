package main

import (
	"context"
	"fmt"
	"os"

	"github.com/petems/echoframe/internal/cli"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	if err := cli.NewRootCmd(Version, Commit).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
