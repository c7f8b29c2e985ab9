// Package upstream classifies failures of OpenAI-compatible API calls.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"docqa/internal/domain"
)

// Wrap annotates err with kind (ErrEmbeddingFailed, ErrGenerationFailed) and,
// when the failure is transient, with ErrUpstreamUnavailable.
func Wrap(kind error, op string, err error) error {
	if Retryable(err) {
		return fmt.Errorf("%s: %w: %w: %w", op, kind, domain.ErrUpstreamUnavailable, err)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// Retryable reports timeouts, transport errors, rate limiting and server errors.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == 0 {
			return true
		}
		return retryableStatus(reqErr.HTTPStatusCode)
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}
