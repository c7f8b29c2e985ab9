package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/port"
)

// DefaultDigestQuery is asked when AnswerFromText gets no question.
const DefaultDigestQuery = "Summarize the key points of the content above as a bulleted list."

// EphemeralUseCase answers a question about one piece of text through a
// throwaway collection that is removed before returning.
type EphemeralUseCase struct {
	ingest   *IngestUseCase
	answer   *AnswerUseCase
	store    port.CollectionStore
	splitter port.Splitter
	logger   *zap.Logger
}

// NewEphemeralUseCase creates a new ephemeral use case.
func NewEphemeralUseCase(
	ingest *IngestUseCase,
	answer *AnswerUseCase,
	store port.CollectionStore,
	splitter port.Splitter,
	logger *zap.Logger,
) *EphemeralUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EphemeralUseCase{
		ingest:   ingest,
		answer:   answer,
		store:    store,
		splitter: splitter,
		logger:   logger,
	}
}

// EphemeralOutcome is the answer together with what it cost to index the text.
type EphemeralOutcome struct {
	domain.QueryOutcome
	Source string       `json:"source"`
	Query  string       `json:"question"`
	Ingest IngestResult `json:"ingest"`
}

// EphemeralCollectionID derives a fresh collection id for source. The hash
// groups ids by source; the random suffix keeps concurrent calls apart.
func EphemeralCollectionID(source string) string {
	sum := sha1.Sum([]byte(source))
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return domain.EphemeralPrefix + hex.EncodeToString(sum[:])[:12] + "_" + suffix
}

// AnswerFromText splits text, indexes it in a new collection and
// answers query from it in doc mode. The collection is deleted on every path.
func (u *EphemeralUseCase) AnswerFromText(ctx context.Context, source, text, query string, topK int) (EphemeralOutcome, error) {
	if strings.TrimSpace(query) == "" {
		query = DefaultDigestQuery
	}

	records := u.splitter.Split(source, text)
	if len(records) == 0 {
		return EphemeralOutcome{}, fmt.Errorf("%w: no usable text in %s", domain.ErrEmptyInput, source)
	}

	id := EphemeralCollectionID(source)
	defer func() {
		if err := u.store.Delete(id); err != nil {
			u.logger.Warn("failed to delete ephemeral collection",
				zap.String("collection", id), zap.Error(err))
		}
	}()

	ingested, err := u.ingest.AddParagraphs(ctx, id, WriteOverwrite, records)
	if err != nil {
		return EphemeralOutcome{}, err
	}

	out, err := u.answer.Answer(ctx, AnswerRequest{
		Query:        query,
		Mode:         domain.ModeDoc,
		TopK:         topK,
		CollectionID: id,
	})
	if err != nil {
		return EphemeralOutcome{}, err
	}

	u.logger.Debug("ephemeral answer",
		zap.String("source", source),
		zap.String("collection", id),
		zap.Int("segments", len(records)))

	return EphemeralOutcome{
		QueryOutcome: out,
		Source:       source,
		Query:        query,
		Ingest:       ingested,
	}, nil
}
