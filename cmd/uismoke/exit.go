package main

import (
	"github.com/pkg/errors"

	"github.com/integrail/uismoke/pkg/smoke"
)

const (
	exitPass  = 0
	exitFail  = 1
	exitUsage = 2
)

// exitCode maps a command error to the process exit status: 0 only when every
// suite passed, 2 for invalid invocations, 1 for everything else.
func exitCode(err error) int {
	var usage *smoke.UsageError
	switch {
	case err == nil:
		return exitPass
	case errors.As(err, &usage):
		return exitUsage
	}
	return exitFail
}

func isChecksFailed(err error) bool {
	return errors.Is(err, smoke.ErrChecksFailed)
}
