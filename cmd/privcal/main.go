package main

import (
	"os"

	"privcal/cmd/privcal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
