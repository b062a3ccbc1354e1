package main

import (
	"os"

	"github.com/aqubia/stepgate/cmd/stepgate/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
