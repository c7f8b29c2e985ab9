package domain

import "errors"

var (
	// ErrInvalidIdentifier is returned for malformed collection ids, before any I/O.
	ErrInvalidIdentifier = errors.New("invalid collection identifier")

	// ErrDimensionMismatch is returned when a vector does not match the collection dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrLengthMismatch is returned when vectors and records differ in length.
	ErrLengthMismatch = errors.New("vectors and records length mismatch")

	// ErrUpstreamUnavailable marks timeouts, transport and quota failures of
	// remote model calls. Callers may retry.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrEmbeddingFailed is returned when the embedding call did not produce vectors.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrGenerationFailed is returned when the chat model did not produce an answer.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrInvalidMode is returned for an unknown answer mode.
	ErrInvalidMode = errors.New("invalid answer mode")

	// ErrEmptyInput is returned for an empty query or an empty paragraph set.
	ErrEmptyInput = errors.New("empty input")

	// ErrInvalidAmount is returned for negative or non-finite cost amounts.
	ErrInvalidAmount = errors.New("invalid cost amount")
)

// IsRetryable reports whether err is worth retrying by the caller.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}
