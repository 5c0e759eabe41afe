package main

import (
	"errors"
	"fmt"
	"os"

	"medthread/internal/util"
)

const (
	exitFailure       = 1
	exitConfiguration = 2
	exitPersistence   = 3
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, util.ErrConfiguration):
		return exitConfiguration
	case errors.Is(err, util.ErrPersistence):
		return exitPersistence
	default:
		return exitFailure
	}
}
