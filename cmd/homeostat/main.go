package main

import (
	"os"

	"github.com/lazypower/homeostat/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
