package main

import (
	"os"

	"negfilter/cmd/negfilter/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
