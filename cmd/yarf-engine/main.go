package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/canonical/yarf/internal/fault"
)

// Exit codes map the error taxonomy so scripts can tell a missing match
// from a dead connection.
const (
	exitUsage     = 2
	exitNotFound  = 3
	exitTimeout   = 4
	exitTransport = 5
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var (
		cfg *fault.ConfigurationError
		nf  *fault.NotFoundError
		to  *fault.TimeoutError
		tr  *fault.TransportError
	)
	switch {
	case errors.As(err, &cfg):
		return exitUsage
	case errors.As(err, &nf):
		return exitNotFound
	case errors.As(err, &to):
		return exitTimeout
	case errors.As(err, &tr):
		return exitTransport
	}
	return 1
}
