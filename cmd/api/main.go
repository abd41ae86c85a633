package main

import (
	"context"
	"os"

	"github.com/fatih/color"

	"github.com/go-arrower/api/cmd"
)

func main() {
	if err := cmd.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		_, _ = color.New(color.FgRed).Fprintln(os.Stderr, "Error:", err)

		os.Exit(1)
	}
}
