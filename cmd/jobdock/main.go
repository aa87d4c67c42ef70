package main

import (
	"os"

	"github.com/majorcontext/jobdock/cmd/jobdock/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
