// Package netmetrics exposes the per-tick and per-peer counters spec §5's
// rolling NetFrameStatistics window used to surface on an admin console,
// as prometheus collectors instead of an in-process ring buffer.
package netmetrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const peerLabel = "client_id"

// ServerMetrics tracks per-process counters for one netserver instance.
// Stats arrive as lifetime cumulative totals (netserver.Stats never
// resets a peer's counters), but prometheus.Counter only exposes Add, so
// ServerMetrics keeps the last-seen cumulative value per peer and adds
// just the delta on each observation.
type ServerMetrics struct {
	connectedClients  prometheus.Gauge
	datagramsRecv     *prometheus.CounterVec
	datagramsSent     *prometheus.CounterVec
	reliableSent      *prometheus.CounterVec
	duplicatesSkipped *prometheus.CounterVec
	fracturedSnaps    *prometheus.CounterVec
	tickDuration      prometheus.Histogram

	mu   sync.Mutex
	last map[uint16]PeerSnapshot
}

// NewServerMetrics registers a fresh set of server collectors against
// reg. Pass prometheus.NewRegistry() in tests to avoid colliding with the
// global default registry across test runs.
func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	factory := promauto.With(reg)
	return &ServerMetrics{
		connectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "netstate_server_connected_clients",
			Help: "Number of clients currently in the connected state.",
		}),
		datagramsRecv: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "netstate_server_datagrams_received_total",
			Help: "Datagrams received from a client.",
		}, []string{peerLabel}),
		datagramsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "netstate_server_datagrams_sent_total",
			Help: "Datagrams sent to a client.",
		}, []string{peerLabel}),
		reliableSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "netstate_server_reliable_messages_sent_total",
			Help: "Reliable messages sent to a client, including resends.",
		}, []string{peerLabel}),
		duplicatesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "netstate_server_duplicate_reliable_messages_skipped_total",
			Help: "Reliable messages discarded because their unique_index was already seen.",
		}, []string{peerLabel}),
		fracturedSnaps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "netstate_server_fractured_snapshots_total",
			Help: "Client upload snapshots that never received all declared fragments.",
		}, []string{peerLabel}),
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "netstate_server_tick_duration_seconds",
			Help:    "Wall-clock duration of one RunOnce tick.",
			Buckets: prometheus.DefBuckets,
		}),
		last: make(map[uint16]PeerSnapshot),
	}
}

// SetConnectedClients records the current connected-peer count.
func (m *ServerMetrics) SetConnectedClients(n int) { m.connectedClients.Set(float64(n)) }

// ObserveTick records one tick's wall-clock duration in seconds.
func (m *ServerMetrics) ObserveTick(seconds float64) { m.tickDuration.Observe(seconds) }

// PeerSnapshot is the subset of netserver.Stats needed to update a single
// peer's label-scoped counters for one tick. It mirrors netserver.Stats'
// fields rather than importing that package, so netmetrics stays usable
// without pulling the UDP transport stack into a metrics-only binary.
type PeerSnapshot struct {
	ClientID                         uint16
	DatagramsReceived                uint64
	DatagramsSent                    uint64
	ReliableMessagesSent             uint64
	DuplicateReliableMessagesSkipped uint64
	FracturedSnapshots               uint64
}

// ObservePeer adds the delta between snap and the last-seen snapshot for
// the same peer to each per-peer counter.
func (m *ServerMetrics) ObservePeer(snap PeerSnapshot) {
	m.mu.Lock()
	prev := m.last[snap.ClientID]
	m.last[snap.ClientID] = snap
	m.mu.Unlock()

	label := prometheus.Labels{peerLabel: clientIDLabel(snap.ClientID)}
	m.datagramsRecv.With(label).Add(float64(snap.DatagramsReceived - prev.DatagramsReceived))
	m.datagramsSent.With(label).Add(float64(snap.DatagramsSent - prev.DatagramsSent))
	m.reliableSent.With(label).Add(float64(snap.ReliableMessagesSent - prev.ReliableMessagesSent))
	m.duplicatesSkipped.With(label).Add(float64(snap.DuplicateReliableMessagesSkipped - prev.DuplicateReliableMessagesSkipped))
	m.fracturedSnaps.With(label).Add(float64(snap.FracturedSnapshots - prev.FracturedSnapshots))
}

// ForgetPeer drops a disconnected peer's label series and cumulative
// bookkeeping so they don't accumulate forever across a long-running
// process.
func (m *ServerMetrics) ForgetPeer(id uint16) {
	m.mu.Lock()
	delete(m.last, id)
	m.mu.Unlock()

	label := prometheus.Labels{peerLabel: clientIDLabel(id)}
	m.datagramsRecv.Delete(label)
	m.datagramsSent.Delete(label)
	m.reliableSent.Delete(label)
	m.duplicatesSkipped.Delete(label)
	m.fracturedSnaps.Delete(label)
}

func clientIDLabel(id uint16) string { return strconv.Itoa(int(id)) }
