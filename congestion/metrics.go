package congestion

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector exposes the congestion controller and RTT estimator
// as a prometheus.Collector: a fixed set of Desc values, each paired
// with a supplier function invoked fresh on every scrape rather than
// cached between scrapes.
type MetricsCollector struct {
	state    *State
	rtt      *RTTStats
	ptoCount func() uint32

	window       *prometheus.Desc
	ssthresh     *prometheus.Desc
	inFlight     *prometheus.Desc
	minRTT       *prometheus.Desc
	smoothedRTT  *prometheus.Desc
	lossCount    *prometheus.Desc
	ptoCountDesc *prometheus.Desc
	bandwidth    *prometheus.Desc
}

// NewMetricsCollector builds a collector over the given congestion
// State and RTTStats. ptoCount is called fresh on every Collect so it
// always reflects the owning connection's current pto_count.
func NewMetricsCollector(state *State, rtt *RTTStats, ptoCount func() uint32) *MetricsCollector {
	ns := "quic_recovery"
	return &MetricsCollector{
		state:    state,
		rtt:      rtt,
		ptoCount: ptoCount,

		window:       prometheus.NewDesc(ns+"_congestion_window_bytes", "Current congestion window size in bytes.", nil, nil),
		ssthresh:     prometheus.NewDesc(ns+"_congestion_ssthresh_bytes", "Current slow-start threshold in bytes, 0 if unset.", nil, nil),
		inFlight:     prometheus.NewDesc(ns+"_bytes_in_flight", "Congestion-controlled bytes currently in flight.", nil, nil),
		minRTT:       prometheus.NewDesc(ns+"_min_rtt_seconds", "Minimum observed RTT.", nil, nil),
		smoothedRTT:  prometheus.NewDesc(ns+"_smoothed_rtt_seconds", "Smoothed RTT estimate.", nil, nil),
		lossCount:    prometheus.NewDesc(ns+"_slowstart_packets_lost_total", "Packets declared lost while in slow start.", nil, nil),
		ptoCountDesc: prometheus.NewDesc(ns+"_pto_count", "Number of consecutive probe timeouts without an intervening ACK.", nil, nil),
		bandwidth:    prometheus.NewDesc(ns+"_bandwidth_estimate_bytes_per_second", "Rolling-maximum delivery rate estimate, diagnostic only.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *MetricsCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.window
	descs <- c.ssthresh
	descs <- c.inFlight
	descs <- c.minRTT
	descs <- c.smoothedRTT
	descs <- c.lossCount
	descs <- c.ptoCountDesc
	descs <- c.bandwidth
}

// Collect implements prometheus.Collector.
func (c *MetricsCollector) Collect(metrics chan<- prometheus.Metric) {
	metrics <- prometheus.MustNewConstMetric(c.window, prometheus.GaugeValue, float64(c.state.Window()))
	metrics <- prometheus.MustNewConstMetric(c.ssthresh, prometheus.GaugeValue, float64(c.state.Ssthresh()))
	metrics <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(c.state.InFlight()))
	metrics <- prometheus.MustNewConstMetric(c.minRTT, prometheus.GaugeValue, c.rtt.MinRTT().Seconds())
	metrics <- prometheus.MustNewConstMetric(c.smoothedRTT, prometheus.GaugeValue, c.rtt.SmoothedRTT().Seconds())
	lost, _ := c.state.Stats()
	metrics <- prometheus.MustNewConstMetric(c.lossCount, prometheus.CounterValue, float64(lost))
	metrics <- prometheus.MustNewConstMetric(c.ptoCountDesc, prometheus.GaugeValue, float64(c.ptoCount()))
	metrics <- prometheus.MustNewConstMetric(c.bandwidth, prometheus.GaugeValue, float64(c.state.BandwidthEstimate()))
}
