package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/safecall/internal/metrics"
)

func TestRecorderCountsAlerts(t *testing.T) {
	recorder := metrics.NewRecorder()
	recorder.AlertDispatched(3)
	recorder.AlertDispatched(0)
	recorder.AlertFailed()

	expected := `
# HELP safecall_contacts_notified_total Emergency contacts notified by SOS alerts.
# TYPE safecall_contacts_notified_total counter
safecall_contacts_notified_total 3
`
	require.NoError(t, testutil.GatherAndCompare(recorder.Registry(), strings.NewReader(expected), "safecall_contacts_notified_total"))

	expectedAlerts := `
# HELP safecall_alerts_dispatched_total SOS alerts processed, by outcome.
# TYPE safecall_alerts_dispatched_total counter
safecall_alerts_dispatched_total{outcome="failed"} 1
safecall_alerts_dispatched_total{outcome="succeeded"} 2
`
	require.NoError(t, testutil.GatherAndCompare(recorder.Registry(), strings.NewReader(expectedAlerts), "safecall_alerts_dispatched_total"))
}

func TestRecorderCountsAccounts(t *testing.T) {
	recorder := metrics.NewRecorder()
	recorder.SignUp("pending")
	recorder.SignUp("pending")
	recorder.SignUp("approved")
	recorder.AccountDecision("rejected")

	count, err := testutil.GatherAndCount(recorder.Registry(), "safecall_signups_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	count, err = testutil.GatherAndCount(recorder.Registry(), "safecall_account_decisions_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRecorderIgnoresNonPositiveMaintenanceCounts(t *testing.T) {
	recorder := metrics.NewRecorder()
	recorder.FlowsSwept(0)
	recorder.AlertLogsPruned(-1)
	recorder.FlowsSwept(2)
	recorder.AlertLogsPruned(5)

	expected := `
# HELP safecall_alert_logs_pruned_total Alert log rows removed by the retention job.
# TYPE safecall_alert_logs_pruned_total counter
safecall_alert_logs_pruned_total 5
# HELP safecall_sos_flows_swept_total Idle SOS flows removed from memory.
# TYPE safecall_sos_flows_swept_total counter
safecall_sos_flows_swept_total 2
`
	require.NoError(t, testutil.GatherAndCompare(recorder.Registry(), strings.NewReader(expected), "safecall_alert_logs_pruned_total", "safecall_sos_flows_swept_total"))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var recorder *metrics.Recorder
	recorder.AlertDispatched(1)
	recorder.AlertFailed()
	recorder.AccountDecision("approved")
	recorder.SignUp("pending")
	recorder.FlowsSwept(1)
	recorder.FlowsActive(1)
	recorder.AlertLogsPruned(1)
}

func TestHandlerServesExposition(t *testing.T) {
	recorder := metrics.NewRecorder()
	recorder.SignUp("pending")

	server := httptest.NewServer(recorder.Handler())
	defer server.Close()

	response, err := http.Get(server.URL)
	require.NoError(t, err)
	defer response.Body.Close()
	require.Equal(t, http.StatusOK, response.StatusCode)

	body, readErr := io.ReadAll(response.Body)
	require.NoError(t, readErr)
	require.Contains(t, string(body), `safecall_signups_total{status="pending"} 1`)
}
