package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audit-analyzer/internal/store"
)

func TestRecordCall(t *testing.T) {
	m := New()
	m.RecordCall(context.Background(), store.CallRecord{Stage: "summary", OK: true, Latency: time.Second})
	m.RecordCall(context.Background(), store.CallRecord{Stage: "summary", OK: false})
	m.RecordCall(context.Background(), store.CallRecord{Stage: "followup", OK: true})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("summary", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("summary", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("followup", "ok")))
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.DocumentAccepted()
	m.DocumentRejected()
	m.DocumentRejected()
	m.SequencingWarning()
	m.TrackSessions(func() int { return 3 })

	assert.Equal(t, 2.0, testutil.ToFloat64(m.documents.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.warnings))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "audit_analyzer_sessions_active 3")
	assert.Contains(t, string(body), `audit_analyzer_documents_total{outcome="accepted"} 1`)
}
