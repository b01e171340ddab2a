package main

import (
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/relaymesh/relay/internal/relayd"
)

func main() {
	if err := relayd.NewApp("relayd").Execute(); err != nil {
		os.Exit(1)
	}
}
