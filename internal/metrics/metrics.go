// Package metrics implements internal/session.Observer on top of
// prometheus/client_golang, exposing the tunnel/byte/message/decode-failure
// counters §6.6 calls for. It is grounded on
// distribution-distribution/notifications/metrics.go's counter/gauge
// layout (events-by-label, pending gauge) adapted to this proxy's own
// label set, using the library directly rather than that repo's internal
// wrapper package.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/quietwire/mtmitm/internal/keystore"
	"github.com/quietwire/mtmitm/internal/session"
	"github.com/quietwire/mtmitm/internal/socks5"
)

const namespace = "mtmitm"

// Collector implements session.Observer and registers its own series on a
// prometheus.Registerer.
type Collector struct {
	tunnelsAccepted prometheus.Counter
	tunnelsActive   prometheus.Gauge
	tunnelsClosed   prometheus.Counter

	bytesTotal *prometheus.CounterVec // label: direction

	messagesTotal *prometheus.CounterVec // label: decrypted ("true"/"false")

	decodeFailures *prometheus.CounterVec // label: kind

	registeredKeys prometheus.GaugeFunc
}

var _ session.Observer = (*Collector)(nil)

// NewCollector constructs a Collector and registers every series on reg.
// store is polled on every /metrics scrape to report the live registered
// key count, matching keystore.Store's own read-mostly concurrency model.
func NewCollector(reg prometheus.Registerer, store *keystore.Store) *Collector {
	c := &Collector{
		tunnelsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tunnels_accepted_total",
			Help:      "Total SOCKS5 tunnels accepted.",
		}),
		tunnelsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tunnels_active",
			Help:      "Currently open tunnels.",
		}),
		tunnelsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tunnels_closed_total",
			Help:      "Total tunnels that have disconnected.",
		}),
		bytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Bytes observed, by direction.",
		}, []string{"direction"}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_recorded_total",
			Help:      "MessageRecords produced, by decrypted state.",
		}, []string{"decrypted"}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Decode failures, by kind.",
		}, []string{"kind"}),
	}
	c.registeredKeys = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "registered_keys",
		Help:      "Authorization keys currently registered.",
	}, func() float64 { return float64(store.Len()) })

	reg.MustRegister(
		c.tunnelsAccepted,
		c.tunnelsActive,
		c.tunnelsClosed,
		c.bytesTotal,
		c.messagesTotal,
		c.decodeFailures,
		c.registeredKeys,
	)
	return c
}

func (c *Collector) TunnelOpened(string) {
	c.tunnelsAccepted.Inc()
	c.tunnelsActive.Inc()
}

func (c *Collector) TunnelClosed(_ string, _ int) {
	c.tunnelsClosed.Inc()
	c.tunnelsActive.Dec()
}

func (c *Collector) BytesObserved(_ string, dir socks5.Direction, n int) {
	c.bytesTotal.WithLabelValues(dir.String()).Add(float64(n))
}

func (c *Collector) MessageRecorded(_ string, decrypted bool) {
	label := "false"
	if decrypted {
		label = "true"
	}
	c.messagesTotal.WithLabelValues(label).Inc()
}

func (c *Collector) DecodeFailure(_ string, kind string) {
	c.decodeFailures.WithLabelValues(kind).Inc()
}
