// Package cli provides error handling utilities for CLI output.
package cli

import (
	"fmt"
	"os"

	ensoerrors "github.com/lwt-sadais/EnsoAI/internal/errors"
)

// PrintError prints an error to stderr with appropriate formatting.
// If the error is an EnsoError, it uses the user-friendly format.
// Otherwise, it prints a simple error message.
func PrintError(err error) {
	if ensoErr := ensoerrors.AsEnsoError(err); ensoErr != nil {
		fmt.Fprintln(os.Stderr, ensoErr.UserMessage())
		if verbose {
			// In verbose mode, also print the error code and cause
			fmt.Fprintf(os.Stderr, "\nCode: %s\n", ensoErr.Code)
			if ensoErr.Cause != nil {
				fmt.Fprintf(os.Stderr, "Cause: %v\n", ensoErr.Cause)
			}
		}
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
