package main

import (
	"os"

	"github.com/lwt-sadais/EnsoAI/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
