package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveSyncDuration("sync", 150*time.Millisecond)
	pr.IncSyncOutcome("sync", OutcomeSuccess)
	pr.IncSyncOutcome("pull", OutcomeFailed)
	pr.IncPullOutcome("reset")
	pr.IncBackupBranch()
	pr.SetPendingChanges(3)
	pr.IncCooldownSkip()
	pr.IncWatcherError()
	pr.IncPollFailure("fetch")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)

	assert.InDelta(t, 1, testutil.ToFloat64(pr.syncOutcomes.WithLabelValues("sync", "success")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(pr.pending), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.backupBranches), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.pollFailures.WithLabelValues("fetch")), 0)
}

func TestNilRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	assert.NotPanics(t, func() {
		pr.IncCooldownSkip()
		pr.SetPendingChanges(1)
		pr.ObserveSyncDuration("push", time.Second)
	})
	assert.IsType(t, NoopRecorder{}, OrNoop(nil))
	assert.Equal(t, Recorder(pr), OrNoop(pr))
}

func TestHTTPHandlerServesRegistry(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.IncCooldownSkip()

	srv := httptest.NewServer(HTTPHandler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ghsync_cooldown_skips_total")
}
