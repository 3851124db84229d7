package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/boxwatch/internal/state"
	"github.com/user/boxwatch/internal/types"
)

const namespace = "boxwatch"

var _ state.Recorder = (*PrometheusRecorder)(nil)

// PrometheusRecorder implements state.Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg             *prom.Registry
	probeDuration   *prom.HistogramVec
	probeResults    *prom.CounterVec
	persistDuration prom.Histogram
	persistResults  *prom.CounterVec
	statusGauge     *prom.GaugeVec
	devicesGauge    prom.Gauge
}

// NewPrometheusRecorder constructs and registers the metrics on reg. A nil
// registry gets a fresh one.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		reg: reg,
		probeDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Duration of probe calls to the box",
			Buckets:   prom.DefBuckets,
		}, []string{"op"}),
		probeResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "probe_results_total",
			Help:      "Probe call counts by operation and outcome",
		}, []string{"op", "result"}),
		persistDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "persist_duration_seconds",
			Help:      "Duration of device state persistence writes",
			Buckets:   prom.DefBuckets,
		}),
		persistResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "persist_results_total",
			Help:      "Persistence write counts by outcome",
		}, []string{"result"}),
		statusGauge: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_status",
			Help:      "Number of peers in each connection status",
		}, []string{"status"}),
		devicesGauge: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "devices",
			Help:      "Number of paired devices",
		}),
	}
	reg.MustRegister(pr.probeDuration, pr.probeResults, pr.persistDuration, pr.persistResults, pr.statusGauge, pr.devicesGauge)
	return pr
}

func result(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}

func (p *PrometheusRecorder) ObserveProbe(op string, d time.Duration, err error) {
	if p == nil {
		return
	}
	p.probeDuration.WithLabelValues(op).Observe(d.Seconds())
	p.probeResults.WithLabelValues(op, result(err)).Inc()
}

func (p *PrometheusRecorder) ObservePersist(d time.Duration, err error) {
	if p == nil {
		return
	}
	p.persistDuration.Observe(d.Seconds())
	p.persistResults.WithLabelValues(result(err)).Inc()
}

// SetStatuses publishes how many peers are in each status.
func (p *PrometheusRecorder) SetStatuses(statuses types.Statuses) {
	if p == nil {
		return
	}
	counts := map[types.ConnectionStatus]int{
		types.StatusPending:      0,
		types.StatusConnected:    0,
		types.StatusDisconnected: 0,
	}
	for _, st := range statuses {
		counts[st]++
	}
	for st, n := range counts {
		p.statusGauge.WithLabelValues(string(st)).Set(float64(n))
	}
}

// SetDevices publishes the number of paired devices.
func (p *PrometheusRecorder) SetDevices(n int) {
	if p == nil {
		return
	}
	p.devicesGauge.Set(float64(n))
}

// Source is the read side of the state container the gauges follow.
type Source interface {
	Devices() types.Devices
	ConnectionStatus() types.Statuses
}

// Track returns a state.Store subscriber that refreshes the gauges from src
// after every change.
func (p *PrometheusRecorder) Track(src Source) func(state.Change) {
	return func(c state.Change) {
		switch c.Kind {
		case state.ChangeStatus, state.ChangeStatuses:
			p.SetStatuses(src.ConnectionStatus())
		case state.ChangeDevices:
			p.SetDevices(len(src.Devices()))
		case state.ChangeReset:
			p.SetStatuses(src.ConnectionStatus())
			p.SetDevices(len(src.Devices()))
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}
