package bridge

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type PahoConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// WillTopic gets a retained "offline" if the connection drops.
	WillTopic string
}

// PahoTransport talks to a real broker.
type PahoTransport struct {
	client paho.Client

	mu   sync.Mutex
	subs map[string]MessageHandler
}

func NewPahoTransport(cfg PahoConfig) (*PahoTransport, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "rain-sensor-" + uuid.NewString()[:8]
	}

	t := &PahoTransport{subs: make(map[string]MessageHandler)}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(t.resubscribe).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Str("broker", cfg.Broker).Msg("MQTT connection lost")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}
	if cfg.WillTopic != "" {
		opts.SetWill(cfg.WillTopic, StatusOffline, 1, true)
	}

	t.client = paho.NewClient(opts)
	token := t.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	log.Info().
		Str("broker", cfg.Broker).
		Str("client_id", cfg.ClientID).
		Msg("MQTT connected")

	return t, nil
}

func (t *PahoTransport) Publish(topic string, payload []byte, retained bool) error {
	token := t.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (t *PahoTransport) Subscribe(topic string, h MessageHandler) error {
	t.mu.Lock()
	t.subs[topic] = h
	t.mu.Unlock()
	return t.subscribe(topic, h)
}

func (t *PahoTransport) Close() error {
	t.client.Disconnect(1000)
	return nil
}

func (t *PahoTransport) subscribe(topic string, h MessageHandler) error {
	token := t.client.Subscribe(topic, 1, func(_ paho.Client, m paho.Message) {
		h(m.Topic(), m.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// resubscribe restores subscriptions after a reconnect with a clean session.
func (t *PahoTransport) resubscribe(_ paho.Client) {
	t.mu.Lock()
	subs := make(map[string]MessageHandler, len(t.subs))
	for topic, h := range t.subs {
		subs[topic] = h
	}
	t.mu.Unlock()

	for topic, h := range subs {
		// Subscribing waits on the network, so keep it off paho's callback.
		go func(topic string, h MessageHandler) {
			if err := t.subscribe(topic, h); err != nil {
				log.Warn().Err(err).Str("topic", topic).Msg("MQTT resubscribe failed")
			}
		}(topic, h)
	}
}
