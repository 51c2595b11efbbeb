package main

import (
	"os"

	"portfwd/cmd/forwardclient/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
