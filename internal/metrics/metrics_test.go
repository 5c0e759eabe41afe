package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.Item("processed")
	r.Item("processed")
	r.Item("failed")
	r.Call("cheap", "ok", 0.4)
	r.Usage("cheap", 100, 20, 0.0012)
	r.Flagged(2)
	r.Flagged(0)
	r.Persisted(5)
	r.DrugMention("glp1")

	require.Equal(t, 2.0, testutil.ToFloat64(r.ItemsTotal.WithLabelValues("processed")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.ItemsTotal.WithLabelValues("failed")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.APICalls.WithLabelValues("cheap", "ok")))
	require.Equal(t, 100.0, testutil.ToFloat64(r.Tokens.WithLabelValues("in")))
	require.InDelta(t, 0.0012, testutil.ToFloat64(r.CostUSD.WithLabelValues("cheap")), 1e-12)
	require.Equal(t, 2.0, testutil.ToFloat64(r.DepthFlagged))
	require.Equal(t, 5.0, testutil.ToFloat64(r.RowsPersisted))
	require.Equal(t, 1.0, testutil.ToFloat64(r.DrugMentions.WithLabelValues("glp1")))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	require.NotPanics(t, func() {
		r.Item("processed")
		r.Call("cheap", "ok", 1)
		r.Retry("rate")
		r.Usage("cheap", 1, 1, 1)
		r.FieldIssue("age")
		r.DrugMention("other")
		r.Flagged(1)
		r.Persisted(1)
		r.PersistFailed()
		r.Backup(10)
	})
}
