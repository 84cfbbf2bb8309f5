package site

import (
	"errors"
	"fmt"
)

// Signal is the normalized failure class adapters map site-specific
// breakage into, so the engine's health and stop logic works uniformly
// across sites.
type Signal string

const (
	SignalCaptcha     Signal = "captcha"      // bot-detection wall
	SignalAuthExpired Signal = "auth_expired" // session/login invalid
	SignalRateLimited Signal = "rate_limited" // too many requests
	SignalTransient   Signal = "transient"    // temporary, worth retrying
	SignalFatal       Signal = "fatal"        // unrecoverable, abort the run
)

// SignalError carries a normalized Signal through an error chain.
type SignalError struct {
	Signal Signal
	Msg    string
}

func (e *SignalError) Error() string {
	if e.Msg == "" {
		return string(e.Signal)
	}
	return fmt.Sprintf("%s: %s", e.Signal, e.Msg)
}

// Errf builds a SignalError with a formatted message.
func Errf(sig Signal, format string, args ...any) error {
	return &SignalError{Signal: sig, Msg: fmt.Sprintf(format, args...)}
}

// SignalOf extracts the normalized signal from an error chain. The second
// return is false when the chain carries no SignalError.
func SignalOf(err error) (Signal, bool) {
	var se *SignalError
	if errors.As(err, &se) {
		return se.Signal, true
	}
	return "", false
}

// IsFatal reports whether err carries the fatal signal.
func IsFatal(err error) bool {
	sig, ok := SignalOf(err)
	return ok && sig == SignalFatal
}
