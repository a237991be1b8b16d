package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietwire/mtmitm/internal/keystore"
	"github.com/quietwire/mtmitm/internal/socks5"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestTunnelLifecycleCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := keystore.NewStore()
	c := NewCollector(reg, store)

	c.TunnelOpened("t1")
	c.TunnelOpened("t2")
	assert.Equal(t, float64(2), counterValue(t, c.tunnelsAccepted))
	assert.Equal(t, float64(2), gaugeValue(t, c.tunnelsActive))

	c.TunnelClosed("t1", 5)
	assert.Equal(t, float64(1), counterValue(t, c.tunnelsClosed))
	assert.Equal(t, float64(1), gaugeValue(t, c.tunnelsActive))
}

func TestBytesAndMessagesAndDecodeFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := keystore.NewStore()
	c := NewCollector(reg, store)

	c.BytesObserved("t1", socks5.ClientToServer, 10)
	c.BytesObserved("t1", socks5.ServerToClient, 20)
	c.MessageRecorded("t1", true)
	c.MessageRecorded("t1", false)
	c.DecodeFailure("t1", "unknown_constructor")

	var m dto.Metric
	require.NoError(t, c.bytesTotal.WithLabelValues("client_to_server").Write(&m))
	assert.Equal(t, float64(10), m.GetCounter().GetValue())

	require.NoError(t, c.messagesTotal.WithLabelValues("true").Write(&m))
	assert.Equal(t, float64(1), m.GetCounter().GetValue())

	require.NoError(t, c.decodeFailures.WithLabelValues("unknown_constructor").Write(&m))
	assert.Equal(t, float64(1), m.GetCounter().GetValue())
}

func TestRegisteredKeysTracksStoreLen(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := keystore.NewStore()
	c := NewCollector(reg, store)

	assert.Equal(t, float64(0), readGaugeFunc(t, c.registeredKeys))

	key := make([]byte, keystore.KeySize)
	_, err := store.Register(key)
	require.NoError(t, err)

	assert.Equal(t, float64(1), readGaugeFunc(t, c.registeredKeys))
}

func readGaugeFunc(t *testing.T, g prometheus.GaugeFunc) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}
