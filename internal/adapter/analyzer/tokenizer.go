package analyzer

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"docqa/internal/port"
)

// charsPerToken is the average characters per token used by ApproxCounter.
const charsPerToken = 3.5

// ApproxCounter estimates token counts from character length. It needs no
// vocabulary files, which makes it the counter of choice in tests.
type ApproxCounter struct{}

// CountTokens returns len(text)/3.5 rounded down, and at least 1 for non-empty text.
func (ApproxCounter) CountTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	tokens := int(float64(n) / charsPerToken)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// TikTokenCounter counts tokens with the BPE encoding of a model.
type TikTokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTikTokenCounter loads the encoding for model, falling back to cl100k_base
// for models tiktoken does not know.
func NewTikTokenCounter(model string) (*TikTokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	return &TikTokenCounter{enc: enc}, nil
}

// CountTokens returns the exact token count of text.
func (c *TikTokenCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// NewCounter returns a tiktoken counter for model, or ApproxCounter when the
// encoding cannot be loaded (for example without network access on first use).
func NewCounter(model string, logger *zap.Logger) port.TokenCounter {
	c, err := NewTikTokenCounter(model)
	if err != nil {
		if logger != nil {
			logger.Warn("tiktoken encoding unavailable, using approximate token counts",
				zap.String("model", model), zap.Error(err))
		}
		return ApproxCounter{}
	}
	return c
}
