package barrier

import (
	"time"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
)

// NoTimeout means the barrier waits for explicit continuation instead of a
// timer.
const NoTimeout time.Duration = -1

// ComputeTimeout returns how long the barrier waits for the deferred
// operations. A default of zero, or any operation declaring a hint of exactly
// zero, disables the timer. Otherwise the longest of the default and all
// declared hints wins.
func ComputeTimeout(def time.Duration, deferred []ports.Deferral) time.Duration {
	if def <= 0 {
		return NoTimeout
	}
	if len(deferred) == 0 {
		return def
	}

	timeout := def
	for _, d := range deferred {
		if d.Timeout == nil {
			continue
		}
		if *d.Timeout == 0 {
			return NoTimeout
		}
		if *d.Timeout > timeout {
			timeout = *d.Timeout
		}
	}
	if timeout == 0 {
		return NoTimeout
	}
	return timeout
}
