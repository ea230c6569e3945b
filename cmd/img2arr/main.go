// Package main is the entry point for the img2arr application.
package main

import (
	"os"

	"github.com/emofalling/img2arr/cmd/img2arr/cmd"
)

func main() {
	err := cmd.Execute()
	if code := cmd.ExitCode(err); code != 0 {
		os.Exit(code)
	}
}
