package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"docqa/internal/adapter/chunker"
	"docqa/internal/adapter/metrics"
	"docqa/internal/domain"
	"docqa/internal/port"
)

// WriteMode selects how AddParagraphs treats an existing collection.
type WriteMode string

const (
	// WriteOverwrite replaces the collection with the new paragraphs.
	WriteOverwrite WriteMode = "overwrite"
	// WriteAppend adds the paragraphs to the collection.
	WriteAppend WriteMode = "append"
)

// ParseWriteMode parses a write mode name. An empty string means append.
func ParseWriteMode(s string) (WriteMode, error) {
	switch WriteMode(s) {
	case "", WriteAppend:
		return WriteAppend, nil
	case WriteOverwrite:
		return WriteOverwrite, nil
	default:
		return "", fmt.Errorf("unknown write mode %q (want overwrite or append)", s)
	}
}

// IngestUseCase embeds paragraphs and stores them in a collection.
type IngestUseCase struct {
	embedder port.Embedder
	store    port.CollectionStore
	ledger   port.CostLedger
	splitter *chunker.ParagraphSplitter
	pricing  Pricing
	metrics  *metrics.Collectors
	logger   *zap.Logger
	now      func() time.Time
}

// NewIngestUseCase creates a new ingest use case. m and logger may be nil.
func NewIngestUseCase(
	embedder port.Embedder,
	store port.CollectionStore,
	ledger port.CostLedger,
	splitter *chunker.ParagraphSplitter,
	pricing Pricing,
	m *metrics.Collectors,
	logger *zap.Logger,
) *IngestUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestUseCase{
		embedder: embedder,
		store:    store,
		ledger:   ledger,
		splitter: splitter,
		pricing:  pricing,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// IngestResult contains the results of storing paragraphs.
type IngestResult struct {
	CollectionID  string  `json:"collection_id"`
	Paragraphs    int     `json:"paragraphs"`
	Dimension     int     `json:"dimension"`
	PromptTokens  int     `json:"prompt_tokens"`
	EmbeddingCost float64 `json:"embedding_cost_usd"`
}

// AddParagraphs embeds records and writes them to the collection named by
// rawID, the default collection when rawID is a placeholder. Nothing is
// written when embedding fails.
func (u *IngestUseCase) AddParagraphs(ctx context.Context, rawID string, mode WriteMode, records []domain.ParagraphRecord) (IngestResult, error) {
	id, err := domain.CollectionOrDefault(rawID)
	if err != nil {
		return IngestResult{}, err
	}
	if len(records) == 0 {
		return IngestResult{}, fmt.Errorf("%w: no paragraphs to ingest", domain.ErrEmptyInput)
	}

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}

	emb, err := u.embedder.Embed(ctx, texts)
	if err != nil {
		return IngestResult{}, err
	}
	if len(emb.Vectors) != len(records) || len(emb.Vectors[0]) == 0 {
		return IngestResult{}, fmt.Errorf("%w: got %d vectors for %d paragraphs",
			domain.ErrEmbeddingFailed, len(emb.Vectors), len(records))
	}
	dim := len(emb.Vectors[0])

	switch mode {
	case WriteOverwrite:
		err = u.store.Replace(id, emb.Vectors, records)
	default:
		if err = u.store.InitAppend(id, dim); err == nil {
			err = u.store.AddEmbeddings(id, emb.Vectors, records)
		}
	}
	if err != nil {
		return IngestResult{}, err
	}

	cost := u.pricing.EmbeddingCost(emb.PromptTokens)
	u.metrics.ObserveIngest(len(records), cost)
	u.logger.Info("paragraphs ingested",
		zap.String("collection", id),
		zap.String("mode", string(mode)),
		zap.Int("paragraphs", len(records)),
		zap.Int("dimension", dim),
		zap.Float64("embedding_cost_usd", cost))

	return IngestResult{
		CollectionID:  id,
		Paragraphs:    len(records),
		Dimension:     dim,
		PromptTokens:  emb.PromptTokens,
		EmbeddingCost: cost,
	}, nil
}

// AddText splits pages into paragraphs tagged with source and the current
// time, then stores them with AddParagraphs.
func (u *IngestUseCase) AddText(ctx context.Context, rawID string, mode WriteMode, source string, pages []chunker.Page) (IngestResult, error) {
	records := u.splitter.SplitPages(source, pages)
	stamp := u.now().Format("2006-01-02 15:04:05")
	for i := range records {
		records[i].Time = stamp
	}
	return u.AddParagraphs(ctx, rawID, mode, records)
}

// RecordTranscription bills the cost of transcribing seconds of media to
// the collection; it is settled by the next document answer there.
func (u *IngestUseCase) RecordTranscription(rawID string, seconds float64) (float64, error) {
	id, err := domain.CollectionOrDefault(rawID)
	if err != nil {
		return 0, err
	}
	amount := u.pricing.TranscribeCost(seconds)
	if err := u.ledger.Accumulate(id, amount); err != nil {
		return 0, err
	}
	return amount, nil
}

// DirResult contains the results of ingesting a directory.
type DirResult struct {
	IngestResult
	FilesIngested int      `json:"files_ingested"`
	FilesSkipped  int      `json:"files_skipped"`
	Errors        []string `json:"errors,omitempty"`
}

// IngestFiles reads files concurrently, splits them into paragraphs and
// stores them in one write. Unreadable or empty files are reported and
// skipped. progress, when set, is called once per file read.
func (u *IngestUseCase) IngestFiles(
	ctx context.Context,
	rawID string,
	mode WriteMode,
	files []port.FileInfo,
	reader port.FileReader,
	workers int,
	progress func(),
) (*DirResult, error) {
	if _, err := domain.CollectionOrDefault(rawID); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = 1
	}

	perFile := make([][]domain.ParagraphRecord, len(files))
	var mu sync.Mutex
	result := &DirResult{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	stamp := u.now().Format("2006-01-02 15:04:05")

	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			if progress != nil {
				defer progress()
			}
			if err := gctx.Err(); err != nil {
				return err
			}

			text, err := reader.ReadFile(file.Path)
			if err != nil {
				mu.Lock()
				result.Errors = append(result.Errors, fmt.Sprintf("failed to read %s: %v", file.Path, err))
				mu.Unlock()
				return nil
			}

			records := u.splitter.SplitPages(filepath.Base(file.Path), chunker.PagesFromText(text))
			for j := range records {
				records[j].Time = stamp
			}
			perFile[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var records []domain.ParagraphRecord
	for i, recs := range perFile {
		if len(recs) == 0 {
			result.FilesSkipped++
			u.logger.Debug("no paragraphs in file", zap.String("path", files[i].Path))
			continue
		}
		result.FilesIngested++
		records = append(records, recs...)
	}

	res, err := u.AddParagraphs(ctx, rawID, mode, records)
	if err != nil {
		return nil, err
	}
	result.IngestResult = res
	return result, nil
}
