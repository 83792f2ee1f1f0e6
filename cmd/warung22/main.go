package main

import (
	"os"

	"github.com/lifanwar/warung22/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
