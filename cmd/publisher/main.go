// Package main is the entry point for the publisher binary.
package main

import (
	"os"

	cli "model-publisher/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
