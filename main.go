package main

import (
	"os"

	"github.com/sadopc/tally/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
