package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"docqa/internal/adapter/metrics"
	"docqa/internal/domain"
	"docqa/internal/port"
)

// DocUnavailableAnswer is returned, as an answer rather than an error, when
// doc mode is forced but the request has no usable documents.
const DocUnavailableAnswer = "No documents are available for this request, so it cannot be answered from documents. Upload documents or select a collection that has content first."

// State is the path the router takes for one request.
type State int

const (
	// StateGeneral answers from model knowledge without embedding anything.
	StateGeneral State = iota
	// StateDocUnavailable returns DocUnavailableAnswer at zero cost.
	StateDocUnavailable
	// StateDocRetrieve embeds the query, retrieves context and answers from it.
	StateDocRetrieve
)

func (s State) String() string {
	switch s {
	case StateGeneral:
		return "general"
	case StateDocUnavailable:
		return "doc_unavailable"
	case StateDocRetrieve:
		return "doc_retrieve"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// AnswerRequest is one question to answer.
type AnswerRequest struct {
	Query string
	Mode  domain.Mode
	TopK  int
	// Sources restricts retrieval to records from these sources.
	Sources []string
	// CollectionID is the raw caller value; placeholders mean "none".
	CollectionID string
}

// AnswerOptions configures the answer use case.
type AnswerOptions struct {
	TopK           int
	ContextCharCap int
	SnippetChars   int
	Pricing        Pricing
	Metrics        *metrics.Collectors
	Logger         *zap.Logger
}

// AnswerUseCase decides between document and general answers, calls the
// models and settles the cost of each answer.
type AnswerUseCase struct {
	retriever port.Retriever
	generator port.Generator
	store     port.CollectionStore
	ledger    port.CostLedger
	opts      AnswerOptions
}

// NewAnswerUseCase creates a new answer use case.
func NewAnswerUseCase(
	retriever port.Retriever,
	generator port.Generator,
	store port.CollectionStore,
	ledger port.CostLedger,
	opts AnswerOptions,
) *AnswerUseCase {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.ContextCharCap <= 0 {
		opts.ContextCharCap = 1200
	}
	if opts.SnippetChars <= 0 {
		opts.SnippetChars = 160
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &AnswerUseCase{
		retriever: retriever,
		generator: generator,
		store:     store,
		ledger:    ledger,
		opts:      opts,
	}
}

// Decide picks the state for req. collectionID is the cleaned id ("" when
// absent). Only a named collection is probed for data.
func (u *AnswerUseCase) Decide(mode domain.Mode, collectionID string, sources []string) State {
	if mode == domain.ModeGeneral {
		return StateGeneral
	}

	docsAvailable := (len(sources) > 0 || collectionID != "") &&
		(collectionID == "" || u.store.HasData(collectionID))

	switch {
	case docsAvailable:
		return StateDocRetrieve
	case mode == domain.ModeDoc:
		return StateDocUnavailable
	default:
		return StateGeneral
	}
}

// Answer answers req. Upstream failures are returned as errors with no
// cost billed and the ledger left untouched.
func (u *AnswerUseCase) Answer(ctx context.Context, req AnswerRequest) (domain.QueryOutcome, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return domain.QueryOutcome{}, fmt.Errorf("%w: query", domain.ErrEmptyInput)
	}
	mode, err := domain.ParseMode(string(req.Mode))
	if err != nil {
		return domain.QueryOutcome{}, err
	}
	collectionID, err := domain.CleanCollectionID(req.CollectionID)
	if err != nil {
		return domain.QueryOutcome{}, err
	}
	topK := req.TopK
	if topK <= 0 {
		topK = u.opts.TopK
	}

	state := u.Decide(mode, collectionID, req.Sources)
	u.opts.Logger.Debug("answer route",
		zap.String("requested_mode", string(mode)),
		zap.String("collection", collectionID),
		zap.Int("sources", len(req.Sources)),
		zap.Stringer("state", state))

	var out domain.QueryOutcome
	switch state {
	case StateGeneral:
		out, err = u.answerGeneral(ctx, query)
	case StateDocUnavailable:
		out = domain.QueryOutcome{
			Answer:   DocUnavailableAnswer,
			ModeUsed: domain.ModeDoc,
			Costs:    domain.NewCosts(0, 0, 0),
			Sources:  []domain.SourceMeta{},
		}
	default:
		out, err = u.answerFromDocs(ctx, query, collectionID, topK, req.Sources)
	}
	if err != nil {
		return domain.QueryOutcome{}, err
	}
	out.CollectionID = collectionID

	u.opts.Metrics.ObserveAnswer(out, state == StateDocUnavailable)
	return out, nil
}

func (u *AnswerUseCase) answerGeneral(ctx context.Context, query string) (domain.QueryOutcome, error) {
	data := PromptData{Query: query}
	gen, err := u.generate(ctx, "general_system.txt", "general_user.txt", data)
	if err != nil {
		return domain.QueryOutcome{}, err
	}

	return domain.QueryOutcome{
		Answer:   strings.TrimSpace(gen.Text),
		ModeUsed: domain.ModeGeneral,
		Usage:    domain.Usage{PromptTokens: gen.PromptTokens, CompletionTokens: gen.CompletionTokens},
		Costs:    domain.NewCosts(0, u.opts.Pricing.ChatCost(gen.PromptTokens, gen.CompletionTokens), 0),
		Sources:  []domain.SourceMeta{},
	}, nil
}

// answerFromDocs runs the retrieve and answer states. Without a named
// collection the default collection is searched.
func (u *AnswerUseCase) answerFromDocs(ctx context.Context, query, collectionID string, topK int, sources []string) (domain.QueryOutcome, error) {
	searchID := collectionID
	if searchID == "" {
		searchID = domain.DefaultCollectionID
	}

	retrieval, err := u.retriever.Retrieve(ctx, searchID, query, topK, sources)
	if err != nil {
		return domain.QueryOutcome{}, err
	}

	entries := buildContext(retrieval.Records, u.opts.ContextCharCap)
	gen, err := u.generate(ctx, "doc_system.txt", "doc_user.txt", PromptData{Query: query, Context: entries})
	if err != nil {
		return domain.QueryOutcome{}, err
	}

	var transcribe float64
	if collectionID != "" {
		transcribe, err = u.ledger.Pop(collectionID)
		if err != nil {
			return domain.QueryOutcome{}, err
		}
		u.opts.Metrics.ObserveLedgerPop(transcribe)
	}

	answer := stripUnverifiedCitations(strings.TrimSpace(gen.Text), contextPages(entries))

	return domain.QueryOutcome{
		Answer:   strings.TrimSpace(answer),
		ModeUsed: domain.ModeDoc,
		Usage:    domain.Usage{PromptTokens: gen.PromptTokens, CompletionTokens: gen.CompletionTokens},
		Costs: domain.NewCosts(
			u.opts.Pricing.EmbeddingCost(retrieval.QueryTokens),
			u.opts.Pricing.ChatCost(gen.PromptTokens, gen.CompletionTokens),
			transcribe,
		),
		Sources: sourcesMeta(retrieval.Records, u.opts.SnippetChars),
	}, nil
}

func (u *AnswerUseCase) generate(ctx context.Context, systemTmpl, userTmpl string, data PromptData) (port.Generation, error) {
	system, err := renderPrompt(systemTmpl, data)
	if err != nil {
		return port.Generation{}, err
	}
	user, err := renderPrompt(userTmpl, data)
	if err != nil {
		return port.Generation{}, err
	}
	return u.generator.Generate(ctx, system, user)
}
