package main

import (
	"os"

	"github.com/moolen/sre-assistant/cmd/sre-assistant/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
