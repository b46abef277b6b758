package main

import (
	"os"

	"readshift/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
