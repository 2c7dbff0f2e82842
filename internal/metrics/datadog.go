package metrics

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"
)

type statter interface {
	Gauge(name string, value float64, tags []string, rate float64) error
	Incr(name string, tags []string, rate float64) error
}

// Datadog emits DogStatsD gauges and counters.
type Datadog struct {
	client statter
}

func NewDatadog(addr, namespace string, tags []string) (*Datadog, error) {
	client, err := statsd.New(addr)
	if err != nil {
		return nil, err
	}

	client.Namespace = namespace
	client.Tags = tags

	log.Info().
		Str("addr", addr).
		Str("namespace", namespace).
		Strs("tags", tags).
		Msg("Datadog metrics initialized")

	return &Datadog{client: client}, nil
}

func (d *Datadog) RainDetected(detected bool) {
	d.gauge("rain.detected", boolToFloat(detected))
}

func (d *Datadog) CooldownActive(active bool) {
	d.gauge("rain.cooldown_active", boolToFloat(active))
}

func (d *Datadog) Poll(result string) {
	d.incr("rain.polls", "result:"+result)
}

func (d *Datadog) Reauth(ok bool) {
	d.incr("rain.reauth", "result:"+okResult(ok))
}

func (d *Datadog) Discovery(result string) {
	d.incr("rain.discovery", "result:"+result)
}

func (d *Datadog) gauge(name string, value float64, tags ...string) {
	if err := d.client.Gauge(name, value, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
	}
}

func (d *Datadog) incr(name string, tags ...string) {
	if err := d.client.Incr(name, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit count metric")
	}
}
