package port

import "context"

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates embeddings for the given texts, one vector per input
	// in input order, together with the prompt tokens billed for the call.
	Embed(ctx context.Context, texts []string) (EmbedResult, error)

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// EmbedResult is the output of one Embed call.
type EmbedResult struct {
	Vectors      [][]float32
	PromptTokens int
}
