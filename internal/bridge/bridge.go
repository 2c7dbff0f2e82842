// Package bridge mirrors the accessory's characteristics onto MQTT so hosts
// such as Homebridge can read, write and subscribe to them.
package bridge

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/rain-sensor/internal/hap"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// MessageHandler receives an inbound message.
type MessageHandler func(topic string, payload []byte)

// Transport is the broker connection the bridge publishes through.
type Transport interface {
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(topic string, h MessageHandler) error
	Close() error
}

// Message is the JSON body published for every characteristic value.
type Message struct {
	Accessory      string             `json:"accessory"`
	Service        hap.ServiceType    `json:"service"`
	Characteristic hap.Characteristic `json:"characteristic"`
	Value          interface{}        `json:"value"`
	Timestamp      time.Time          `json:"timestamp"`
}

type Bridge struct {
	transport Transport
	registry  *hap.Registry
	accessory string
	base      string
	now       func() time.Time

	unsubscribe func()
}

func New(t Transport, r *hap.Registry, prefix, accessory string) *Bridge {
	return &Bridge{
		transport: t,
		registry:  r,
		accessory: accessory,
		base:      BaseTopic(prefix, accessory),
		now:       time.Now,
	}
}

// BaseTopic is <prefix>/<slug(accessory)>.
func BaseTopic(prefix, accessory string) string {
	return strings.TrimRight(prefix, "/") + "/" + Slug(accessory)
}

// StatusTopic carries the retained online/offline availability flag.
func StatusTopic(prefix, accessory string) string {
	return BaseTopic(prefix, accessory) + "/status"
}

// Slug lower-cases name and replaces every run of non alphanumerics with a
// single dash.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

func (b *Bridge) Topic(c hap.Characteristic) string {
	return b.base + "/" + string(c)
}

// Start subscribes to get/set topics, publishes cached values and forwards
// every later update.
func (b *Bridge) Start() error {
	for _, svc := range b.registry.Services() {
		for _, c := range svc.Characteristics {
			st, ch := svc.Type, c
			if err := b.transport.Subscribe(b.Topic(ch)+"/get", func(string, []byte) { b.handleGet(st, ch) }); err != nil {
				return fmt.Errorf("subscribe %s: %w", ch, err)
			}
			if !b.registry.Writable(st, ch) {
				continue
			}
			if err := b.transport.Subscribe(b.Topic(ch)+"/set", func(_ string, payload []byte) { b.handleSet(st, ch, payload) }); err != nil {
				return fmt.Errorf("subscribe %s: %w", ch, err)
			}
		}
	}

	// Only cached values: reading through handlers can have side effects.
	for _, svc := range b.registry.Services() {
		for _, c := range svc.Characteristics {
			if v, ok := b.registry.Value(svc.Type, c); ok {
				b.publish(svc.Type, c, v)
			}
		}
	}

	b.unsubscribe = b.registry.Subscribe(func(u hap.Update) {
		b.publish(u.Service, u.Characteristic, u.Value)
	})

	if err := b.transport.Publish(b.base+"/status", []byte(StatusOnline), true); err != nil {
		log.Warn().Err(err).Msg("Failed to publish MQTT availability")
	}

	log.Info().Str("topic", b.base).Msg("MQTT bridge started")
	return nil
}

func (b *Bridge) Stop() error {
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
	if err := b.transport.Publish(b.base+"/status", []byte(StatusOffline), true); err != nil {
		log.Warn().Err(err).Msg("Failed to publish MQTT availability")
	}
	return b.transport.Close()
}

func (b *Bridge) handleGet(svc hap.ServiceType, c hap.Characteristic) {
	v, err := b.registry.Get(svc, c)
	if err != nil {
		log.Warn().Err(err).Str("characteristic", string(c)).Msg("MQTT get failed")
		return
	}
	b.publish(svc, c, v)
}

func (b *Bridge) handleSet(svc hap.ServiceType, c hap.Characteristic, payload []byte) {
	v, err := ParseBool(payload)
	if err != nil {
		log.Warn().Err(err).Str("characteristic", string(c)).Str("payload", string(payload)).Msg("Ignoring MQTT set")
		return
	}
	if err := b.registry.Set(svc, c, v); err != nil {
		log.Warn().Err(err).Str("characteristic", string(c)).Msg("MQTT set failed")
	}
}

func (b *Bridge) publish(svc hap.ServiceType, c hap.Characteristic, v interface{}) {
	payload, err := json.Marshal(Message{
		Accessory:      b.accessory,
		Service:        svc,
		Characteristic: c,
		Value:          v,
		Timestamp:      b.now().UTC(),
	})
	if err != nil {
		log.Error().Err(err).Str("characteristic", string(c)).Msg("Failed to encode MQTT message")
		return
	}
	if err := b.transport.Publish(b.Topic(c), payload, true); err != nil {
		log.Warn().Err(err).Str("topic", b.Topic(c)).Msg("MQTT publish failed")
	}
}

// ParseBool accepts true/false, 1/0, on/off or a JSON {"value": ...} body.
func ParseBool(payload []byte) (bool, error) {
	s := strings.ToLower(strings.TrimSpace(string(payload)))
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	if v, err := strconv.ParseBool(s); err == nil {
		return v, nil
	}

	var body struct {
		Value interface{} `json:"value"`
	}
	if err := json.Unmarshal(payload, &body); err == nil {
		switch v := body.Value.(type) {
		case bool:
			return v, nil
		case float64:
			return v != 0, nil
		}
	}
	return false, fmt.Errorf("%q: %w", s, hap.ErrInvalidValue)
}
