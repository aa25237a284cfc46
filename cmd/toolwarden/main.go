package main

import (
	"os"
	_ "time/tzdata"

	"github.com/gzhole/toolwarden/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
