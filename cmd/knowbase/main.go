// Package main provides the entry point for the knowbase CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/knowbase/cmd/knowbase/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
