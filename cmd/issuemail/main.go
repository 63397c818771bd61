package main

import (
	"os"

	"github.com/telekom/issuemail/pkg/cli"
)

func main() {
	root := cli.NewRootCommand(os.Stdout)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
