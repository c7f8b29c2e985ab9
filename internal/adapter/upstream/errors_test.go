package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"canceled", context.Canceled, false},
		{"rate limited", &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}, true},
		{"server error", &openai.APIError{HTTPStatusCode: 503}, true},
		{"bad request", &openai.APIError{HTTPStatusCode: 400, Message: "bad input"}, false},
		{"unauthorized", &openai.APIError{HTTPStatusCode: 401}, false},
		{"undecodable 502", &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")}, true},
		{"transport", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	err := Wrap(domain.ErrEmbeddingFailed, "embed batch 1", &openai.APIError{HTTPStatusCode: 500})
	require.ErrorIs(t, err, domain.ErrEmbeddingFailed)
	require.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	require.True(t, domain.IsRetryable(err))

	err = Wrap(domain.ErrGenerationFailed, "chat", &openai.APIError{HTTPStatusCode: 400})
	require.ErrorIs(t, err, domain.ErrGenerationFailed)
	require.False(t, domain.IsRetryable(err))
}
