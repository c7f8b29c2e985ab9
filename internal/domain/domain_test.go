package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
)

func TestCleanCollectionID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"empty", "", "", false},
		{"placeholder string", "string", "", false},
		{"placeholder null upper", "NULL", "", false},
		{"placeholder undefined", " undefined ", "", false},
		{"placeholder none", "none", "", false},
		{"plain", "c1", "c1", false},
		{"dash underscore", "my_docs-2", "my_docs-2", false},
		{"trimmed", "  c1  ", "c1", false},
		{"max length", strings.Repeat("a", 64), strings.Repeat("a", 64), false},
		{"too long", strings.Repeat("a", 65), "", true},
		{"slash", "../etc", "", true},
		{"space inside", "a b", "", true},
		{"unicode", "文件", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CleanCollectionID(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidIdentifier) {
					t.Fatalf("expected ErrInvalidIdentifier, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestCollectionOrDefault(t *testing.T) {
	id, err := CollectionOrDefault("null")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != DefaultCollectionID {
		t.Errorf("expected %s, got %s", DefaultCollectionID, id)
	}

	if _, err := CollectionOrDefault("bad/id"); !errors.Is(err, ErrInvalidIdentifier) {
		t.Errorf("expected ErrInvalidIdentifier, got %v", err)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeAuto, "AUTO": ModeAuto, "doc": ModeDoc, " general ": ModeGeneral} {
		got, err := ParseMode(in)
		if err != nil {
			t.Fatalf("ParseMode(%q): unexpected error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseMode(%q) = %s, want %s", in, got, want)
		}
	}

	if _, err := ParseMode("rag"); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("expected ErrInvalidMode, got %v", err)
	}
}

func TestNewCosts_TotalIsSumOfParts(t *testing.T) {
	cases := [][3]float64{
		{0, 0, 0},
		{0.0000013, 0.0123456789, 0},
		{1.0 / 3, 2.0 / 3, 0.1 + 0.2},
		{0.00013, 0.004215, 0.018},
	}
	for _, c := range cases {
		costs := NewCosts(c[0], c[1], c[2])
		sum := costs.Embedding + costs.Chat + costs.Transcribe
		if math.Abs(costs.Total-sum) > 1e-9 {
			t.Errorf("NewCosts%v: total %v != sum %v", c, costs.Total, sum)
		}
	}
}

func TestRoundUSD(t *testing.T) {
	if got := RoundUSD(0.12345678); got != 0.123457 {
		t.Errorf("expected 0.123457, got %v", got)
	}
}

func TestScoreFromDistance(t *testing.T) {
	if ScoreFromDistance(0) != 1 {
		t.Errorf("exact match should score 1")
	}
	prev := ScoreFromDistance(0)
	for _, d := range []float64{0.1, 0.5, 1, 2, 10} {
		s := ScoreFromDistance(d)
		if s >= prev || s <= 0 {
			t.Errorf("score not strictly decreasing at d=%v: %v", d, s)
		}
		prev = s
	}
}

func TestIsRetryable(t *testing.T) {
	err := fmt.Errorf("embed batch 1: %w: %w", ErrEmbeddingFailed, ErrUpstreamUnavailable)
	if !IsRetryable(err) {
		t.Error("expected wrapped upstream error to be retryable")
	}
	if IsRetryable(fmt.Errorf("x: %w", ErrDimensionMismatch)) {
		t.Error("dimension mismatch must not be retryable")
	}
}
