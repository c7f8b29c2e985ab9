package port

import "context"

// Generator produces chat completions.
type Generator interface {
	// Generate answers userPrompt under systemPrompt.
	Generate(ctx context.Context, systemPrompt, userPrompt string) (Generation, error)

	// ModelName returns the name of the model.
	ModelName() string
}

// Generation is a completed answer and its token usage.
type Generation struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}
