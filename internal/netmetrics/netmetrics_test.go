package netmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := &dto.Metric{}
	require.NoError(t, (<-ch).Write(m))
	return m.GetCounter().GetValue()
}

func TestObservePeerAddsOnlyTheDelta(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewServerMetrics(reg)

	m.ObservePeer(PeerSnapshot{ClientID: 1, DatagramsReceived: 5})
	m.ObservePeer(PeerSnapshot{ClientID: 1, DatagramsReceived: 8})

	got := counterValue(t, m.datagramsRecv.WithLabelValues("1"))
	require.Equal(t, float64(8), got)
}

func TestForgetPeerDropsItsSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewServerMetrics(reg)

	m.ObservePeer(PeerSnapshot{ClientID: 2, DatagramsReceived: 3})
	m.ForgetPeer(2)

	m.mu.Lock()
	_, tracked := m.last[2]
	m.mu.Unlock()
	require.False(t, tracked)
}
