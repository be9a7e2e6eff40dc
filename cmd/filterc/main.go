// Command filterc compiles FQL report filters to SQL.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/matthewbaird/reportfilter/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands report their own failures; only cobra's usage errors
		// reach here unprinted.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(cli.ExitCommandError)
		}
		os.Exit(exitErr.Code)
	}
}
