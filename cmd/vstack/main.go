// vstack records numeric array programs once and runs them many times.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/vstack/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
