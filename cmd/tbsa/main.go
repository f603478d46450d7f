// Command tbsa runs TBSA compliance checks against a described target.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/tbsa/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
