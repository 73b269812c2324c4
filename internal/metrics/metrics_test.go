package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudpico-sensorbridge/internal/ble"
	"cloudpico-sensorbridge/internal/measure"
)

func TestRegisterBLE(t *testing.T) {
	r := New()
	stats := &ble.Stats{}
	require.NoError(t, r.RegisterBLE(stats))

	stats.Ads.Add(3)
	stats.DuplicateAds.Add(1)

	n, err := testutil.GatherAndCount(r.Prometheus(), "sensorbridge_ble_ads_total", "sensorbridge_ble_duplicate_ads_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	expected := `
# HELP sensorbridge_ble_ads_total Advertisements received
# TYPE sensorbridge_ble_ads_total counter
sensorbridge_ble_ads_total 3
`
	require.NoError(t, testutil.GatherAndCompare(r.Prometheus(), strings.NewReader(expected), "sensorbridge_ble_ads_total"))

	// registering the same stats twice is a programming error
	assert.Error(t, r.RegisterBLE(stats))
}

func TestRegisterPublisherAndGauge(t *testing.T) {
	r := New()
	stats := &measure.Stats{}
	require.NoError(t, r.RegisterPublisher(stats))
	full := true
	require.NoError(t, r.RegisterGauge("table_full", "Capacity latch", BoolGauge(func() bool { return full })))

	stats.Published.Add(2)

	expected := `
# HELP sensorbridge_publish_published_total Messages acknowledged by the broker
# TYPE sensorbridge_publish_published_total counter
sensorbridge_publish_published_total 2
# HELP sensorbridge_table_full Capacity latch
# TYPE sensorbridge_table_full gauge
sensorbridge_table_full 1
`
	require.NoError(t, testutil.GatherAndCompare(r.Prometheus(), strings.NewReader(expected),
		"sensorbridge_publish_published_total", "sensorbridge_table_full"))
}

func TestHandler(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterBLE(&ble.Stats{}))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "sensorbridge_ble_set_events_total")
	assert.Contains(t, string(body), "go_goroutines")
}
