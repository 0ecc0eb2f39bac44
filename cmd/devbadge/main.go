// Command devbadge runs a Discord bot that keeps its token encrypted at rest
// and answers the /init command used to qualify for the Active Developer Badge.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/florianilch/devbadge/cmd/devbadge/commands"
)

func main() {
	err := commands.Execute(context.Background(), os.Args)

	code := commands.ExitCode(err)
	if err != nil && err.Error() != "" {
		_, _ = fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(code)
}
