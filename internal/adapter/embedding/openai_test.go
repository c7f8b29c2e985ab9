package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"docqa/internal/adapter/analyzer"
	"docqa/internal/domain"
)

type embeddingsRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// fakeEmbeddingsServer answers /v1/embeddings with vectors whose first
// component is the input length, listed in reverse order to exercise
// index based reassembly.
func fakeEmbeddingsServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		atomic.AddInt32(calls, 1)

		var req embeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(len(req.Input[i])), 1},
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
			"usage":  map[string]int{"prompt_tokens": 7 * len(req.Input), "total_tokens": 7 * len(req.Input)},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBatches(t *testing.T) {
	counter := analyzer.ApproxCounter{}
	text := strings.Repeat("a", 14) // 4 tokens

	batches := Batches([]string{text, text, text, text, text}, 10, counter)
	require.Len(t, batches, 3)
	require.Len(t, batches[0], 2)
	require.Len(t, batches[1], 2)
	require.Len(t, batches[2], 1)

	huge := strings.Repeat("b", 100) // 28 tokens
	batches = Batches([]string{text, huge, text}, 10, counter)
	require.Len(t, batches, 3)
	require.Equal(t, []string{huge}, batches[1])

	require.Empty(t, Batches(nil, 10, counter))
}

func TestOpenAIEmbedder_BatchesAndOrders(t *testing.T) {
	var calls int32
	srv := fakeEmbeddingsServer(t, &calls)

	e := NewOpenAICompatibleEmbedder("test-key", Options{
		BaseURL:          srv.URL + "/v1",
		Model:            "text-embedding-3-large",
		BatchTokenBudget: 10,
	}, analyzer.ApproxCounter{})

	texts := []string{
		strings.Repeat("a", 14),
		strings.Repeat("b", 15),
		strings.Repeat("c", 16),
		strings.Repeat("d", 17),
		strings.Repeat("e", 18),
	}
	res, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
	require.Len(t, res.Vectors, len(texts))
	for i, v := range res.Vectors {
		require.Equal(t, float32(len(texts[i])), v[0], "vector %d out of order", i)
	}
	require.Equal(t, 35, res.PromptTokens)
}

func TestOpenAIEmbedder_Empty(t *testing.T) {
	e := NewOpenAICompatibleEmbedder("test-key", Options{BaseURL: "http://127.0.0.1:1/v1"}, analyzer.ApproxCounter{})
	res, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, res.Vectors)
}

func TestOpenAIEmbedder_RateLimitedIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests"}}`))
	}))
	defer srv.Close()

	e := NewOpenAICompatibleEmbedder("test-key", Options{BaseURL: srv.URL + "/v1"}, analyzer.ApproxCounter{})
	_, err := e.Embed(context.Background(), []string{"hello"})
	require.ErrorIs(t, err, domain.ErrEmbeddingFailed)
	require.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestOpenAIEmbedder_BadRequestIsNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"input too long","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	e := NewOpenAICompatibleEmbedder("test-key", Options{BaseURL: srv.URL + "/v1"}, analyzer.ApproxCounter{})
	_, err := e.Embed(context.Background(), []string{"hello"})
	require.ErrorIs(t, err, domain.ErrEmbeddingFailed)
	require.False(t, domain.IsRetryable(err))
}

func TestOpenAIEmbedder_TimeoutIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	e := NewOpenAICompatibleEmbedder("test-key", Options{
		BaseURL: srv.URL + "/v1",
		Timeout: 50 * time.Millisecond,
	}, analyzer.ApproxCounter{})
	_, err := e.Embed(context.Background(), []string{"hello"})
	require.ErrorIs(t, err, domain.ErrEmbeddingFailed)
	require.True(t, domain.IsRetryable(err))
}

func TestOpenAIEmbedder_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[1,2]}],"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	}))
	defer srv.Close()

	e := NewOpenAICompatibleEmbedder("test-key", Options{BaseURL: srv.URL + "/v1"}, analyzer.ApproxCounter{})
	_, err := e.Embed(context.Background(), []string{"one", "two"})
	require.ErrorIs(t, err, domain.ErrEmbeddingFailed)
}

func TestNewOpenAIEmbedder_MissingKey(t *testing.T) {
	t.Setenv("DOCQA_TEST_MISSING_KEY", "")
	_, err := NewOpenAIEmbedder("DOCQA_TEST_MISSING_KEY", Options{}, analyzer.ApproxCounter{})
	require.Error(t, err)
}

func TestMockEmbedder(t *testing.T) {
	e := NewMockEmbedder(4, analyzer.ApproxCounter{})

	res, err := e.Embed(context.Background(), []string{"ab", "abcdefgh"})
	require.NoError(t, err)
	require.Len(t, res.Vectors, 2)
	require.Equal(t, []float32{0.097, 0.098, 0, 0}, res.Vectors[0])
	require.Len(t, res.Vectors[1], 4)
	require.Equal(t, 3, res.PromptTokens)
	require.Equal(t, "mock", e.ModelName())
}
