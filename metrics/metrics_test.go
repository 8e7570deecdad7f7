package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// value returns the value of the single series of a metric family.
func value(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		require.Len(t, mf.GetMetric(), 1)
		metric := mf.GetMetric()[0]
		if c := metric.GetCounter(); c != nil {
			return c.GetValue()
		}
		return metric.GetGauge().GetValue()
	}

	t.Fatalf("metric %s not gathered", name)
	return 0
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Frame("RadioLink")
	m.Frame("RadioLink")
	m.Error("telegram")
	m.Telegram("WEP")
	m.Reading("temperature", "°C")
	m.Command()
	m.SetDevices(3)

	assert.Equal(t, 2.0, value(t, reg, "wmbus_frames_total"))
	assert.Equal(t, 1.0, value(t, reg, "wmbus_errors_total"))
	assert.Equal(t, 1.0, value(t, reg, "wmbus_telegrams_total"))
	assert.Equal(t, 1.0, value(t, reg, "wmbus_readings_total"))
	assert.Equal(t, 1.0, value(t, reg, "wmbus_commands_total"))
	assert.Equal(t, 3.0, value(t, reg, "wmbus_devices"))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Frame("DevMgmt")
		m.Error("frame")
		m.Telegram("WEP")
		m.Reading("humidity", "%")
		m.Command()
		m.SetDevices(1)
	})
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	New(reg).Frame("DevMgmt")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `wmbus_frames_total{endpoint="DevMgmt"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
