// Package metrics exposes Prometheus instruments for annotation runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder groups the run instruments. A nil *Recorder is valid and records nothing.
type Recorder struct {
	ItemsTotal      *prometheus.CounterVec
	APICalls        *prometheus.CounterVec
	APIRetries      *prometheus.CounterVec
	APIDuration     *prometheus.HistogramVec
	Tokens          *prometheus.CounterVec
	CostUSD         *prometheus.CounterVec
	FieldIssues     *prometheus.CounterVec
	DrugMentions    *prometheus.CounterVec
	DepthFlagged    prometheus.Counter
	RowsPersisted   prometheus.Counter
	PersistFailures prometheus.Counter
	BackupBytes     prometheus.Gauge
}

// New registers the instruments on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ItemsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "annotate",
			Name:      "items_total",
			Help:      "Items finished by outcome status",
		}, []string{"status"}),
		APICalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "annotate",
			Name:      "api_calls_total",
			Help:      "Annotation API calls by tier and result",
		}, []string{"tier", "result"}),
		APIRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "annotate",
			Name:      "api_retries_total",
			Help:      "Retries by error class",
		}, []string{"class"}),
		APIDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "annotate",
			Name:      "api_duration_seconds",
			Help:      "Latency of a single annotation call",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"tier"}),
		Tokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "annotate",
			Name:      "tokens_total",
			Help:      "Tokens consumed by direction",
		}, []string{"direction"}),
		CostUSD: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "annotate",
			Name:      "cost_usd_total",
			Help:      "Estimated spend in USD",
		}, []string{"tier"}),
		FieldIssues: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "annotate",
			Name:      "field_issues_total",
			Help:      "Feature fields nulled during validation",
		}, []string{"field"}),
		DrugMentions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "annotate",
			Name:      "drug_mentions_total",
			Help:      "Standardized drug mentions by class",
		}, []string{"class"}),
		DepthFlagged: f.NewCounter(prometheus.CounterOpts{
			Namespace: "annotate",
			Name:      "depth_flagged_total",
			Help:      "Comments whose parent chain was cyclic or too deep",
		}),
		RowsPersisted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "annotate",
			Name:      "rows_persisted_total",
			Help:      "Result rows inserted (conflicts excluded)",
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "annotate",
			Name:      "persist_failures_total",
			Help:      "Batch persistence attempts that failed",
		}),
		BackupBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "annotate",
			Name:      "last_backup_bytes",
			Help:      "Size of the most recent backup file",
		}),
	}
}

func (r *Recorder) Item(status string) {
	if r == nil {
		return
	}
	r.ItemsTotal.WithLabelValues(status).Inc()
}

// Call records one finished API call.
func (r *Recorder) Call(tier, result string, seconds float64) {
	if r == nil {
		return
	}
	r.APICalls.WithLabelValues(tier, result).Inc()
	r.APIDuration.WithLabelValues(tier).Observe(seconds)
}

func (r *Recorder) Retry(class string) {
	if r == nil {
		return
	}
	r.APIRetries.WithLabelValues(class).Inc()
}

func (r *Recorder) Usage(tier string, in, out int, cost float64) {
	if r == nil {
		return
	}
	r.Tokens.WithLabelValues("in").Add(float64(in))
	r.Tokens.WithLabelValues("out").Add(float64(out))
	r.CostUSD.WithLabelValues(tier).Add(cost)
}

func (r *Recorder) FieldIssue(field string) {
	if r == nil {
		return
	}
	r.FieldIssues.WithLabelValues(field).Inc()
}

func (r *Recorder) DrugMention(class string) {
	if r == nil {
		return
	}
	r.DrugMentions.WithLabelValues(class).Inc()
}

func (r *Recorder) Flagged(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.DepthFlagged.Add(float64(n))
}

func (r *Recorder) Persisted(rows int64) {
	if r == nil || rows <= 0 {
		return
	}
	r.RowsPersisted.Add(float64(rows))
}

func (r *Recorder) PersistFailed() {
	if r == nil {
		return
	}
	r.PersistFailures.Inc()
}

func (r *Recorder) Backup(bytes int64) {
	if r == nil {
		return
	}
	r.BackupBytes.Set(float64(bytes))
}
