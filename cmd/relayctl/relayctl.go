package main

import (
	"os"

	"github.com/relaymesh/relay/internal/relayctl/cmd"
)

func main() {
	command := cmd.NewDefaultRelayCtlCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}
