// Package metrics exports room engine activity to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/artpar/roomkit/ports"
)

const namespace = "roomkit"

// Collector holds the roomkit metrics. It implements ports.Observer.
type Collector struct {
	// Engine metrics
	EventsDispatched *prometheus.CounterVec
	EventHandlers    prometheus.Histogram
	HandlerFailures  *prometheus.CounterVec
	CommandsExecuted *prometheus.CounterVec
	PropertyChanges  *prometheus.CounterVec

	// Host metrics
	PlayersOnline prometheus.Gauge
	HostConnected prometheus.Gauge

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates a collector registered with the default Prometheus registry.
func New() *Collector {
	return build(promauto.With(prometheus.DefaultRegisterer), prometheus.DefaultGatherer)
}

// NewWithRegistry creates a collector on its own registry, so tests and
// multiple rooms in one process do not collide.
func NewWithRegistry(reg *prometheus.Registry) *Collector {
	return build(promauto.With(reg), reg)
}

func build(factory promauto.Factory, gatherer prometheus.Gatherer) *Collector {
	return &Collector{
		EventsDispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dispatched_total",
				Help:      "Events dispatched, by event name and whether a handler vetoed",
			},
			[]string{"event", "vetoed"},
		),
		EventHandlers: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "event_handlers",
				Help:      "Number of handlers invoked per dispatch",
				Buckets:   []float64{0, 1, 2, 4, 8, 16},
			},
		),
		HandlerFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handler_failures_total",
				Help:      "Handlers that returned an error or panicked",
			},
			[]string{"event"},
		),
		CommandsExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_executed_total",
				Help:      "Command executions by command and outcome",
			},
			[]string{"command", "outcome"},
		),
		PropertyChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "property_changes_total",
				Help:      "Player property changes that fired a change event",
			},
			[]string{"property"},
		),
		PlayersOnline: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "players_online",
				Help:      "Players currently in the room",
			},
		),
		HostConnected: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "host_connected",
				Help:      "1 while a host runtime is attached",
			},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Failed config reloads",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of the last successful config reload",
			},
		),
		gatherer: gatherer,
	}
}

// EventDispatched implements ports.Observer.
func (c *Collector) EventDispatched(event string, handlers int, vetoed bool) {
	c.EventsDispatched.WithLabelValues(event, strconv.FormatBool(vetoed)).Inc()
	c.EventHandlers.Observe(float64(handlers))
}

// HandlerFailed implements ports.Observer.
func (c *Collector) HandlerFailed(event string) {
	c.HandlerFailures.WithLabelValues(event).Inc()
}

// CommandExecuted implements ports.Observer. Unknown command names are
// folded into one series.
func (c *Collector) CommandExecuted(command, outcome string) {
	if outcome == ports.OutcomeNotFound {
		command = "unknown"
	}
	c.CommandsExecuted.WithLabelValues(command, outcome).Inc()
}

// PropertyChanged implements ports.Observer.
func (c *Collector) PropertyChanged(property string) {
	c.PropertyChanges.WithLabelValues(property).Inc()
}

// ConfigReloaded records a reload attempt.
func (c *Collector) ConfigReloaded(err error) {
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.Set(float64(time.Now().Unix()))
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

var _ ports.Observer = (*Collector)(nil)
