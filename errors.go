package main

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// Exit codes returned by the command
const (
	ExitOK      = 0
	ExitRuntime = 1
	ExitFatal   = 2
)

// ErrorKind classifies fatal preconditions
type ErrorKind int

const (
	KindConfiguration ErrorKind = iota + 1
	KindInput
	KindConflictingArguments
	KindConnection
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration error"
	case KindInput:
		return "input error"
	case KindConflictingArguments:
		return "conflicting arguments"
	case KindConnection:
		return "connection error"
	default:
		return "error"
	}
}

// FatalError is a precondition failure that aborts the run with ExitFatal
type FatalError struct {
	Kind ErrorKind
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func configurationError(err error) error {
	return &FatalError{Kind: KindConfiguration, Err: err}
}

func inputError(err error) error {
	return &FatalError{Kind: KindInput, Err: err}
}

func conflictError(err error) error {
	return &FatalError{Kind: KindConflictingArguments, Err: err}
}

func connectionError(err error) error {
	return &FatalError{Kind: KindConnection, Err: err}
}

// IsKind reports whether err carries a FatalError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var fe *FatalError
	return errors.As(err, &fe) && fe.Kind == kind
}

// exitCode maps an error returned by the command to the process exit status
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		return ExitFatal
	}
	var ue *usageError
	if errors.As(err, &ue) {
		return ExitFatal
	}
	return ExitRuntime
}

// usageError wraps flag parsing failures reported by cobra
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

// userMessage returns the short message shown on stderr. The full trace goes
// to the log file.
func userMessage(err error) string {
	var fe *FatalError
	if errors.As(err, &fe) {
		return fmt.Sprintf("%s: %s", fe.Kind, eris.ToString(fe.Err, false))
	}
	return eris.ToString(err, false)
}
