// Package metrics provides internal metrics collection for the plugin
// lifecycle. This package is internal and should not be imported by
// external projects.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector records plugin lifecycle metrics. A nil *Collector is a valid
// no-op receiver so callers never need to branch on whether metrics are
// enabled.
type Collector struct {
	registrationsTotal   *prometheus.CounterVec
	registrationsSkipped *prometheus.CounterVec
	initFailuresTotal    prometheus.Counter
	unloadsTotal         *prometheus.CounterVec
	activePlugins        prometheus.Gauge
	healthStatus         *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector creates a Collector registered on reg. A nil reg uses the
// default Prometheus registerer; a nil logger is replaced with a no-op.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.registrationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugin_registrations_total",
			Help:      "Total number of successful plugin registrations",
		},
		[]string{"source"},
	)

	c.registrationsSkipped = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugin_registrations_skipped_total",
			Help:      "Total number of plugin registrations skipped",
		},
		[]string{"reason"},
	)

	c.initFailuresTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugin_init_failures_total",
			Help:      "Total number of plugin initialization failures",
		},
	)

	c.unloadsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugin_unloads_total",
			Help:      "Total number of plugin unload attempts",
		},
		[]string{"result"},
	)

	c.activePlugins = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "plugins_active",
			Help:      "Number of currently active (enabled) plugins",
		},
	)

	c.healthStatus = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "plugin_health_status",
			Help:      "Plugin health: 1 healthy, 0 unhealthy",
		},
		[]string{"plugin"},
	)

	return c
}

// PluginRegistered records a successful registration from source.
func (c *Collector) PluginRegistered(source string) {
	if c == nil {
		return
	}
	c.registrationsTotal.WithLabelValues(source).Inc()
}

// RegistrationSkipped records a registration skip with its reason
// (disabled, duplicate, construct, load_hook).
func (c *Collector) RegistrationSkipped(reason string) {
	if c == nil {
		return
	}
	c.registrationsSkipped.WithLabelValues(reason).Inc()
}

// InitFailed records a plugin initialization failure.
func (c *Collector) InitFailed() {
	if c == nil {
		return
	}
	c.initFailuresTotal.Inc()
}

// Unloaded records an unload attempt and its result.
func (c *Collector) Unloaded(ok bool) {
	if c == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	c.unloadsTotal.WithLabelValues(result).Inc()
}

// SetActive updates the active plugin gauge.
func (c *Collector) SetActive(n int) {
	if c == nil {
		return
	}
	c.activePlugins.Set(float64(n))
}

// SetHealth updates the per-plugin health gauge.
func (c *Collector) SetHealth(plugin string, healthy bool) {
	if c == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1.0
	}
	c.healthStatus.WithLabelValues(plugin).Set(v)
}

// ForgetPlugin drops per-plugin series after an unload.
func (c *Collector) ForgetPlugin(plugin string) {
	if c == nil {
		return
	}
	c.healthStatus.DeleteLabelValues(plugin)
}
