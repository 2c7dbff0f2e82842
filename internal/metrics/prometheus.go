package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus keeps collectors on a private registry served by the API.
type Prometheus struct {
	registry  *prometheus.Registry
	rain      prometheus.Gauge
	cooldown  prometheus.Gauge
	polls     *prometheus.CounterVec
	reauth    *prometheus.CounterVec
	discovery *prometheus.CounterVec
}

func NewPrometheus(namespace string) *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		rain: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rain_detected",
			Help:      "1 when the last completed poll saw rainfall in the sliding window.",
		}),
		cooldown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cooldown_active",
			Help:      "1 while detections are suppressed by the cooldown.",
		}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Measurement polls by result.",
		}, []string{"result"}),
		reauth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reauth_total",
			Help:      "Session reauthentication attempts by result.",
		}, []string{"result"}),
		discovery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_total",
			Help:      "Rain gauge discovery attempts by result.",
		}, []string{"result"}),
	}
	p.registry.MustRegister(p.rain, p.cooldown, p.polls, p.reauth, p.discovery)
	return p
}

// Gatherer returns nil on a nil receiver so callers can pass it through
// when Prometheus is disabled.
func (p *Prometheus) Gatherer() prometheus.Gatherer {
	if p == nil {
		return nil
	}
	return p.registry
}

func (p *Prometheus) RainDetected(detected bool) { p.rain.Set(boolToFloat(detected)) }

func (p *Prometheus) CooldownActive(active bool) { p.cooldown.Set(boolToFloat(active)) }

func (p *Prometheus) Poll(result string) { p.polls.WithLabelValues(result).Inc() }

func (p *Prometheus) Reauth(ok bool) { p.reauth.WithLabelValues(okResult(ok)).Inc() }

func (p *Prometheus) Discovery(result string) { p.discovery.WithLabelValues(result).Inc() }
