// Command recordsync watches a cart record collection and repairs records
// that break the configured rules.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/recordsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
