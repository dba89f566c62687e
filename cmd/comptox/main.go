package main

import (
	"context"
	"os"

	"github.com/fatih/color"

	"github.com/comptox-ai/comptox-api-client/cmd/comptox/commands"
)

func main() {
	if err := commands.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
