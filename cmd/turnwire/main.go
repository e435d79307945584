package main

import (
	"os"

	"github.com/turnwire/turnwire/cmd/turnwire/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
