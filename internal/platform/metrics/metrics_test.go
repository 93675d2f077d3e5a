package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordPosted(t *testing.T) {
	before := testutil.ToFloat64(actionsPosted.WithLabelValues("BID", "sent"))
	RecordPosted("BID", "sent")
	assert.Equal(t, before+1, testutil.ToFloat64(actionsPosted.WithLabelValues("BID", "sent")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordReceived("VOTE", "PROCESSED")
	ObserveSize("VOTE", 512)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `mp_actions_received_total{status="PROCESSED",type="VOTE"}`)
	assert.Contains(t, string(body), "mp_action_size_bytes_bucket")
}
