package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() log.Logger {
	level, _ := log.ToLevel("error")
	return log.NewTestLogger(level)
}

func TestCountersRegistered(t *testing.T) {
	m := New("bse", testLogger())

	m.OrdersSubmitted.Inc()
	m.TradesExecuted.Add(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersSubmitted))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.TradesExecuted))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.OrdersRejected))
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New("bse", testLogger())
	m.TicksProcessed.Inc()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "bse_ticks_processed_total 1")
}
