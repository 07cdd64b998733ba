// Package airerr holds the error kinds that are fatal to an AirNFC attempt.
//
// Every error notified through a DidFail callback wraps exactly one of the
// sentinels below, so callers classify with errors.Is or KindOf.
package airerr

import (
	"errors"
	"fmt"
)

var (
	// The audio resource could not be acquired. Nothing changed beyond
	// returning to idle; the caller may retry later.
	ErrUnableToStart = errors.New("airnfc: unable to start")

	// The capture callback missed its deadline repeatedly and the active
	// session was aborted.
	ErrInsufficientCPUTime = errors.New("airnfc: insufficient cpu time")

	// An external audio-session interruption tore the session down.
	ErrInterruption = errors.New("airnfc: interruption")
)

type Kind int

const (
	KindUnknown Kind = iota
	KindUnableToStart
	KindInsufficientCPUTime
	KindInterruption
)

func (k Kind) String() string {
	switch k {
	case KindUnableToStart:
		return "UnableToStart"
	case KindInsufficientCPUTime:
		return "InsufficientCPUTime"
	case KindInterruption:
		return "Interruption"
	default:
		return "Unknown"
	}
}

// KindOf classifies err. Errors that wrap none of the sentinels are KindUnknown.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrUnableToStart):
		return KindUnableToStart
	case errors.Is(err, ErrInsufficientCPUTime):
		return KindInsufficientCPUTime
	case errors.Is(err, ErrInterruption):
		return KindInterruption
	default:
		return KindUnknown
	}
}

// IsFatal reports whether err carries one of the three fatal kinds.
func IsFatal(err error) bool {
	return KindOf(err) != KindUnknown
}

// UnableToStart wraps cause so that it classifies as ErrUnableToStart while
// keeping cause reachable through errors.Is / errors.As.
func UnableToStart(cause error) error {
	if cause == nil {
		return ErrUnableToStart
	}
	return fmt.Errorf("%w: %w", ErrUnableToStart, cause)
}
