package main

import (
	"os"

	"github.com/cexll/bmad-mcp-server/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
