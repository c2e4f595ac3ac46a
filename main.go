package main

import (
	"os"

	"github.com/nomadictuba2005/claude-code-api/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
