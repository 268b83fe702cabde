// # cmd/snapgraph/main.go
package main

import (
	"os"

	"snapgraph/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
