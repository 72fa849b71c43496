package main

import (
	"os"

	"sjsage522/listingworker/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
