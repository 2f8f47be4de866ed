package llm

import (
	"errors"
	"fmt"
)

// ErrLLM is the base classification for LLM transport and protocol
// failures.
var ErrLLM = errors.New("llm error")

// ErrRequestTooLarge marks a 400 response, which the endpoint uses to
// signal that the prompt exceeded its context window. Callers may re-chunk
// and retry with smaller inputs.
var ErrRequestTooLarge = fmt.Errorf("%w: request too large", ErrLLM)

// StatusError carries the HTTP status and response body of a failed call.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm error: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrLLM }
