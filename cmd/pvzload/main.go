package main

import (
	"context"
	"os"

	"github.com/wesleyorama2/pvzload/internal/cli"
)

// Main runs the CLI with args and returns the process exit code.
func Main(args []string) int {
	return cli.Execute(context.Background(), args)
}

func main() {
	os.Exit(Main(os.Args[1:]))
}
