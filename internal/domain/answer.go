package domain

import (
	"fmt"
	"math"
	"strings"
)

// Mode is the answer mode requested by a caller or used for an answer.
type Mode string

const (
	ModeAuto    Mode = "auto"
	ModeDoc     Mode = "doc"
	ModeGeneral Mode = "general"
)

// ParseMode parses a mode name. An empty string means auto.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeDoc:
		return ModeDoc, nil
	case ModeGeneral:
		return ModeGeneral, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Usage is the chat token usage of one answer.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Costs itemises the USD cost of one answer. Total is always the sum of the
// three components as reported.
type Costs struct {
	Embedding  float64 `json:"embedding_cost_usd"`
	Chat       float64 `json:"chat_cost_usd"`
	Transcribe float64 `json:"transcribe_cost_usd"`
	Total      float64 `json:"total_cost_usd"`
}

// NewCosts rounds each component and sets Total to their sum.
func NewCosts(embedding, chat, transcribe float64) Costs {
	c := Costs{
		Embedding:  RoundUSD(embedding),
		Chat:       RoundUSD(chat),
		Transcribe: RoundUSD(transcribe),
	}
	c.Total = c.Embedding + c.Chat + c.Transcribe
	return c
}

// SourceMeta describes one retrieved record backing a doc answer. Text
// carries the same flattened snippet as Snippet, not the full paragraph.
type SourceMeta struct {
	Snippet string  `json:"snippet"`
	Text    string  `json:"text"`
	Source  string  `json:"source"`
	Page    int     `json:"page"`
	Time    string  `json:"time,omitempty"`
	Score   float64 `json:"score"`
}

// QueryOutcome is the result of answering one query.
type QueryOutcome struct {
	Answer       string       `json:"answer"`
	ModeUsed     Mode         `json:"mode_used"`
	CollectionID string       `json:"collection_id,omitempty"`
	Usage        Usage        `json:"usage"`
	Costs        Costs        `json:"costs"`
	Sources      []SourceMeta `json:"sources"`
}

// RoundUSD rounds an amount to six decimal places.
func RoundUSD(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
