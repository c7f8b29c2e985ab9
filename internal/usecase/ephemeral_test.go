package usecase

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
	"docqa/internal/port"
)

const article = `Accept cookies
aaaa The first line of the article.
bbbb The second line of the article.

Sign in to read more`

func requireNoEphemeral(t *testing.T, f *fixture) {
	t.Helper()
	ids, err := f.store.List()
	require.NoError(t, err)
	for _, id := range ids {
		require.False(t, domain.IsEphemeral(id), "leftover collection %s", id)
	}
}

func TestEphemeralCollectionID(t *testing.T) {
	a := EphemeralCollectionID("https://example.com/a")
	b := EphemeralCollectionID("https://example.com/a")

	require.Regexp(t, regexp.MustCompile(`^_url_[0-9a-f]{12}_[0-9a-f]{8}$`), a)
	require.Equal(t, a[:17], b[:17])
	require.NotEqual(t, a, b)
	require.NoError(t, domain.ValidateCollectionID(a))
}

func TestAnswerFromText(t *testing.T) {
	f := newFixture(t)

	out, err := f.ephemeral.AnswerFromText(context.Background(), "https://example.com/a", article, "", 5)
	require.NoError(t, err)
	require.Equal(t, domain.ModeDoc, out.ModeUsed)
	require.Equal(t, DefaultDigestQuery, out.Query)
	require.True(t, domain.IsEphemeral(out.CollectionID))
	require.Equal(t, 1, out.Ingest.Paragraphs)
	requireCostSum(t, out.Costs)

	require.Len(t, out.Sources, 1)
	require.Equal(t, "https://example.com/a", out.Sources[0].Source)
	require.Equal(t, 1, out.Sources[0].Page)
	require.NotContains(t, out.Sources[0].Text, "cookie")
	require.NotContains(t, out.Sources[0].Text, "Sign in")

	prompt := f.generator.Calls()[0].UserPrompt
	require.Contains(t, prompt, "Question: "+DefaultDigestQuery)
	require.Contains(t, prompt, "Page 1: aaaa The first line of the article.\nbbbb The second line of the article.")

	requireNoEphemeral(t, f)
	st, err := f.store.Stats(out.CollectionID)
	require.NoError(t, err)
	require.False(t, st.Exists)
}

func TestAnswerFromText_CleansUpOnGenerationFailure(t *testing.T) {
	f := newFixture(t)
	f.generator.Reply = func(_, _ string) (port.Generation, error) {
		return port.Generation{}, errors.New("model down")
	}

	_, err := f.ephemeral.AnswerFromText(context.Background(), "https://example.com/b", article, "what?", 3)
	require.Error(t, err)
	requireNoEphemeral(t, f)
}

func TestAnswerFromText_CleansUpOnEmbeddingFailure(t *testing.T) {
	f := newFixture(t)
	f.embedder.err = errors.New("embedding down")

	_, err := f.ephemeral.AnswerFromText(context.Background(), "src", article, "what?", 3)
	require.Error(t, err)
	requireNoEphemeral(t, f)
}

func TestAnswerFromText_EmptyText(t *testing.T) {
	f := newFixture(t)

	_, err := f.ephemeral.AnswerFromText(context.Background(), "src", "\n\n  \n", "q", 3)
	require.ErrorIs(t, err, domain.ErrEmptyInput)
	require.Zero(t, f.embedder.calls.Load())
}

func TestAnswerFromText_DoesNotTouchOtherCollections(t *testing.T) {
	f := newFixture(t)
	seed(t, f, "keep", page(1, "a.pdf", "aaaa alpha paragraph"))
	require.NoError(t, f.ledger.Accumulate("keep", 0.2))

	long := strings.Repeat("zzzz line of text\n", 5)
	_, err := f.ephemeral.AnswerFromText(context.Background(), "src", long, "q", 3)
	require.NoError(t, err)

	ids, err := f.store.List()
	require.NoError(t, err)
	require.Equal(t, []string{"keep"}, ids)

	pending, err := f.ledger.Peek("keep")
	require.NoError(t, err)
	require.Equal(t, 0.2, pending)
}
