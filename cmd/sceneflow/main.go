package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"sceneflow/internal/services"
)

// Exit codes: 2 when the batch could not start because of configuration or
// input, 1 for every other failure.
const (
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, formatError(err))
		}
		os.Exit(exitCode(err))
	}
}

func formatError(err error) string {
	if kind := services.Kind(err); kind != "" && kind != "unknown" {
		return fmt.Sprintf("error (%s): %v", kind, err)
	}
	return fmt.Sprintf("error: %v", err)
}

func exitCode(err error) int {
	switch services.Kind(err) {
	case "configuration", "validation":
		return exitUsage
	default:
		return exitFailure
	}
}
