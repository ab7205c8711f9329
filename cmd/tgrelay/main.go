package main

import (
	"errors"
	"fmt"
	"os"

	"tgrelay/internal/cli"
	"tgrelay/internal/config"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)

		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			fmt.Fprintln(os.Stderr, config.RequiredKeysHint)
		}
		os.Exit(1)
	}
}
