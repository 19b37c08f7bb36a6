// formulary maintains the formulas that derive catalog record attributes.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/formulary/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
