// cmd/mirror/main.go
//
// Entry point for the smart mirror service. All behaviour lives in
// internal/cli; this file only sets the build version and the exit code.

package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/kingrea/smart-mirror/internal/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := cli.NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}
