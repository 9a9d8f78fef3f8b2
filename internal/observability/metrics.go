package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the ledger core.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	journalsPosted   prometheus.Counter
	journalsReversed prometheus.Counter
	batchesPosted    prometheus.Counter
	ledgerRowsPosted prometheus.Counter
	tbFinalized      prometheus.Counter
	closesCompleted  *prometheus.CounterVec
	postingFailures  *prometheus.CounterVec
}

// NewMetrics initialises the registry and ledger metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	journalsPosted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "granite_journals_posted_total",
		Help: "Journal entries posted to the general ledger.",
	})
	journalsReversed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "granite_journals_reversed_total",
		Help: "Posted journal entries reversed.",
	})
	batchesPosted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "granite_batches_posted_total",
		Help: "Posting batches posted.",
	})
	ledgerRowsPosted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "granite_ledger_rows_posted_total",
		Help: "General ledger rows made immutable.",
	})
	tbFinalized := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "granite_trial_balances_finalized_total",
		Help: "Trial balances finalised.",
	})
	closesCompleted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "granite_period_closes_completed_total",
		Help: "Fiscal period closes completed by close type.",
	}, []string{"close_type"})
	postingFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "granite_posting_failures_total",
		Help: "Rejected posting attempts by reason.",
	}, []string{"reason"})
	registry.MustRegister(journalsPosted, journalsReversed, batchesPosted,
		ledgerRowsPosted, tbFinalized, closesCompleted, postingFailures)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		journalsPosted:   journalsPosted,
		journalsReversed: journalsReversed,
		batchesPosted:    batchesPosted,
		ledgerRowsPosted: ledgerRowsPosted,
		tbFinalized:      tbFinalized,
		closesCompleted:  closesCompleted,
		postingFailures:  postingFailures,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// JournalPosted increments the posted journal counter.
func (m *Metrics) JournalPosted() {
	if m != nil {
		m.journalsPosted.Inc()
	}
}

// JournalReversed increments the reversed journal counter.
func (m *Metrics) JournalReversed() {
	if m != nil {
		m.journalsReversed.Inc()
	}
}

// BatchPosted increments the posted batch counter.
func (m *Metrics) BatchPosted() {
	if m != nil {
		m.batchesPosted.Inc()
	}
}

// LedgerRowPosted increments the immutable ledger row counter.
func (m *Metrics) LedgerRowPosted() {
	if m != nil {
		m.ledgerRowsPosted.Inc()
	}
}

// TrialBalanceFinalized increments the finalised trial balance counter.
func (m *Metrics) TrialBalanceFinalized() {
	if m != nil {
		m.tbFinalized.Inc()
	}
}

// CloseCompleted increments the completed close counter for a close type.
func (m *Metrics) CloseCompleted(closeType string) {
	if m != nil {
		m.closesCompleted.WithLabelValues(closeType).Inc()
	}
}

// PostingFailure increments the rejected posting counter for a reason.
func (m *Metrics) PostingFailure(reason string) {
	if m != nil {
		m.postingFailures.WithLabelValues(reason).Inc()
	}
}
