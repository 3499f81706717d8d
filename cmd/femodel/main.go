package main

import (
	"os"

	"github.com/notargets/femodel/cmd/femodel/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
