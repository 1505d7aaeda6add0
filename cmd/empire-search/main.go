// Package main provides the entry point for the empire-search CLI.
package main

import (
	"os"

	"github.com/jayusctrojan/empire-search/cmd/empire-search/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
