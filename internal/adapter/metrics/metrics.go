package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"docqa/internal/domain"
)

// Collectors holds the docqa metrics. A nil *Collectors records nothing.
type Collectors struct {
	// AnswersTotal counts answers by the mode actually used.
	AnswersTotal *prometheus.CounterVec

	// DocUnavailableTotal counts doc requests answered with the advisory.
	DocUnavailableTotal prometheus.Counter

	// CostUSDTotal sums reported cost by component.
	CostUSDTotal *prometheus.CounterVec

	// SearchDuration observes retrieval latency including query embedding.
	SearchDuration prometheus.Histogram

	// LedgerPopsTotal counts ledger pops that returned a non-zero amount.
	LedgerPopsTotal prometheus.Counter

	// IngestedParagraphsTotal counts paragraphs written to collections.
	IngestedParagraphsTotal prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Collectors {
	f := promauto.With(reg)
	return &Collectors{
		AnswersTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docqa_answers_total",
				Help: "Answers returned, by mode used",
			},
			[]string{"mode"},
		),
		DocUnavailableTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "docqa_doc_unavailable_total",
			Help: "Doc mode requests answered with the no-documents advisory",
		}),
		CostUSDTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docqa_cost_usd_total",
				Help: "Reported cost in USD, by component",
			},
			[]string{"component"},
		),
		SearchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "docqa_search_duration_seconds",
			Help:    "Retrieval latency including query embedding",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		LedgerPopsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "docqa_ledger_pops_total",
			Help: "Pending transcription costs billed to an answer",
		}),
		IngestedParagraphsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "docqa_ingested_paragraphs_total",
			Help: "Paragraphs embedded and stored",
		}),
	}
}

// ObserveAnswer records the mode and costs of one answer.
func (c *Collectors) ObserveAnswer(out domain.QueryOutcome, docUnavailable bool) {
	if c == nil {
		return
	}
	c.AnswersTotal.WithLabelValues(string(out.ModeUsed)).Inc()
	if docUnavailable {
		c.DocUnavailableTotal.Inc()
	}
	c.CostUSDTotal.WithLabelValues("embedding").Add(out.Costs.Embedding)
	c.CostUSDTotal.WithLabelValues("chat").Add(out.Costs.Chat)
	c.CostUSDTotal.WithLabelValues("transcribe").Add(out.Costs.Transcribe)
}

// ObserveSearch records how long a retrieval took.
func (c *Collectors) ObserveSearch(d time.Duration) {
	if c == nil {
		return
	}
	c.SearchDuration.Observe(d.Seconds())
}

// ObserveLedgerPop records a pop of amount.
func (c *Collectors) ObserveLedgerPop(amount float64) {
	if c == nil || amount <= 0 {
		return
	}
	c.LedgerPopsTotal.Inc()
}

// ObserveIngest records stored paragraphs and their embedding cost.
func (c *Collectors) ObserveIngest(paragraphs int, embeddingCost float64) {
	if c == nil {
		return
	}
	c.IngestedParagraphsTotal.Add(float64(paragraphs))
	c.CostUSDTotal.WithLabelValues("embedding").Add(embeddingCost)
}
