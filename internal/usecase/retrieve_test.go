package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"docqa/internal/adapter/analyzer"
)

func TestRetrieve_ScoresFollowRank(t *testing.T) {
	f := newFixture(t)
	seed(t, f, "c1",
		page(1, "a.pdf", "aaaa alpha"),
		page(2, "a.pdf", "bbbb beta"),
		page(3, "a.pdf", "cccc gamma"),
		page(4, "b.pdf", "dddd delta"))

	res, err := f.retrieve.Retrieve(context.Background(), "c1", "aaaa", 3, nil)
	require.NoError(t, err)
	require.Len(t, res.Records, 3)
	require.Equal(t, analyzer.ApproxCounter{}.CountTokens("aaaa"), res.QueryTokens)

	require.Equal(t, "aaaa alpha", res.Records[0].Record.Text)
	require.Equal(t, 1.0, res.Records[0].Score)
	for i := 1; i < len(res.Records); i++ {
		require.LessOrEqual(t, res.Records[i].Score, res.Records[i-1].Score)
		require.Greater(t, res.Records[i].Score, 0.0)
	}
}

func TestRetrieve_MissingCollection(t *testing.T) {
	f := newFixture(t)

	res, err := f.retrieve.Retrieve(context.Background(), "nothing-here", "aaaa", 5, nil)
	require.NoError(t, err)
	require.Empty(t, res.Records)
	require.Equal(t, 1, res.QueryTokens)
}

func TestRetrieve_MinScoreThreshold(t *testing.T) {
	f := newFixture(t)
	seed(t, f, "c1", page(1, "a.pdf", "aaaa alpha"), page(2, "a.pdf", "zzzz far away"))

	strict := NewRetrieveUseCase(f.embedder, f.store, nil, nil, 0.9999)
	res, err := strict.Retrieve(context.Background(), "c1", "aaaa", 5, nil)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	require.Equal(t, "aaaa alpha", res.Records[0].Record.Text)
}
