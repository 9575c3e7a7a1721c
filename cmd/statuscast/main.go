package main

import (
	"os"

	"github.com/lazypower/statuscast/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
