// Package resilience holds the retry policy for command dispatch and a
// circuit breaker guarding the cloud transcription dependency.
package resilience

import (
	"strings"
)

// Apology is returned to the user when the executor produced no usable text
// within the attempt budget. Transient executor trouble always degrades to
// this reply instead of a protocol error.
const Apology = "Sorry, I couldn't generate a response. Please try again."

// TextFunc produces one executor attempt's worth of text.
type TextFunc func() (string, error)

// IsTransientFunc classifies an executor error as retryable.
type IsTransientFunc func(error) bool

// RetryText runs fn up to maxAttempts times and returns the first non-blank
// result. Blank results and transient errors are retried; any other error
// stops immediately and is returned to the caller. When the budget is spent
// on only blanks or transient errors, RetryText returns Apology with a nil
// error, so the session still gets a textual reply.
func RetryText(fn TextFunc, maxAttempts int, isTransient IsTransientFunc) (string, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		text, err := fn()
		if err != nil {
			if isTransient != nil && isTransient(err) {
				if attempt < maxAttempts {
					continue
				}
				return Apology, nil
			}
			return "", err
		}

		if strings.TrimSpace(text) == "" {
			if attempt < maxAttempts {
				continue
			}
			return Apology, nil
		}

		return text, nil
	}

	return Apology, nil
}
