package main

import (
	"os"

	"github.com/idris/kestrel/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
