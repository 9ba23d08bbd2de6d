// Command vidinteld runs the vidintel daemon: job workers plus the HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
