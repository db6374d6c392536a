// Package main is the entry point for the mlsctl CLI.
// mlsctl is the operator terminal tool for the mlsmanager master API.
package main

import (
	"os"

	"github.com/YangYuS8/mlsmanager/cmd/mlsctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
