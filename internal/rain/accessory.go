// Package rain turns a remote rain gauge into a rain detected signal for a
// home-automation host.
//
// One Accessory tracks one gauge. It authenticates, discovers the gauge,
// polls it over a trailing window and projects the result as either a leak
// sensor or a momentary switch. All state lives behind a single mutex so every
// handler (timer, network completion, host read) runs as a discrete step.
// Network calls are dispatched off that lock and never block a timer.
package rain

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/rain-sensor/internal/clock"
	"github.com/thatsimonsguy/rain-sensor/internal/hap"
	"github.com/thatsimonsguy/rain-sensor/internal/metrics"
	"github.com/thatsimonsguy/rain-sensor/internal/model"
	"github.com/thatsimonsguy/rain-sensor/internal/weather"
)

const (
	DefaultAutoResetDelay = 500 * time.Millisecond
	DefaultReauthInterval = 24 * time.Hour

	MeasureScale = "30min"
	MeasureType  = "sum_rain"

	Manufacturer = "Netatmo"
	leakModel    = "Virtual Leak Sensor for Netatmo Rain Sensor"
	switchModel  = "Virtual Switch for Netatmo Rain Sensor"
)

type Config struct {
	Name            string
	DeviceType      model.DeviceType
	PollingInterval time.Duration
	SlidingWindow   time.Duration
	Cooldown        time.Duration
	ReauthInterval  time.Duration
	CooldownGate    model.CooldownGate
	AutoResetDelay  time.Duration
	Credentials     weather.Credentials
}

// Notifier sends human-facing alerts.
type Notifier interface {
	Send(title, message string) error
}

// Deps are the capabilities injected into an Accessory. Clock, Metrics and
// Dispatch default when nil.
type Deps struct {
	Host     hap.Host
	Auth     weather.Authenticator
	Clock    clock.Clock
	Metrics  metrics.Recorder
	Notifier Notifier
	// Dispatch runs blocking upstream work. Defaults to a new goroutine.
	Dispatch func(func())
}

type Accessory struct {
	cfg      Config
	host     hap.Host
	clock    clock.Clock
	metrics  metrics.Recorder
	notifier Notifier
	dispatch func(func())
	sessions *SessionManager

	ctx    context.Context
	cancel context.CancelFunc

	mu               sync.Mutex
	identity         model.Identity
	rainDetected     bool
	cooldownActive   bool
	switchOn         bool
	pollerArmed      bool
	discoveryStarted bool
	// awaitingPoll holds switch reads at false from cooldown expiry until
	// the next successful poll lands.
	awaitingPoll  bool
	lastPoll      time.Time
	pollTimer     clock.Timer
	reauthTimer   clock.Timer
	cooldownTimer clock.Timer
	resetTimer    clock.Timer
}

// New builds an Accessory and registers its characteristic handlers on the
// host. Nothing runs until Start.
func New(cfg Config, deps Deps) *Accessory {
	if cfg.AutoResetDelay <= 0 {
		cfg.AutoResetDelay = DefaultAutoResetDelay
	}
	if cfg.CooldownGate == "" {
		cfg.CooldownGate = model.GateBoth
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Dispatch == nil {
		deps.Dispatch = func(f func()) { go f() }
	}

	a := &Accessory{
		cfg:      cfg,
		host:     deps.Host,
		clock:    deps.Clock,
		metrics:  deps.Metrics,
		notifier: deps.Notifier,
		dispatch: deps.Dispatch,
		sessions: NewSessionManager(deps.Auth, cfg.Credentials),
		ctx:      context.Background(),
		cancel:   func() {},
	}
	a.register()
	return a
}

// Services returns the accessory information service and the projection's
// sensor service.
func (a *Accessory) Services() []hap.Service {
	modelName := leakModel
	if a.cfg.DeviceType == model.DeviceSwitch {
		modelName = switchModel
	}

	info := hap.Service{
		Type:            hap.ServiceAccessoryInformation,
		Name:            a.cfg.Name,
		Characteristics: []hap.Characteristic{hap.CharManufacturer, hap.CharModel, hap.CharName},
		Static: map[hap.Characteristic]interface{}{
			hap.CharManufacturer: Manufacturer,
			hap.CharModel:        modelName,
			hap.CharName:         a.cfg.Name,
		},
	}

	switch a.cfg.DeviceType {
	case model.DeviceSwitch:
		return []hap.Service{info, {
			Type:            hap.ServiceSwitch,
			Name:            a.cfg.Name,
			Characteristics: []hap.Characteristic{hap.CharOn},
		}}
	default:
		return []hap.Service{info, {
			Type:            hap.ServiceLeakSensor,
			Name:            a.cfg.Name,
			Characteristics: []hap.Characteristic{hap.CharLeakDetected, hap.CharStatusActive},
		}}
	}
}

// Start authenticates, discovers the gauge and arms the poller. It returns
// immediately; upstream calls run through Dispatch.
func (a *Accessory) Start(ctx context.Context) {
	a.mu.Lock()
	a.ctx, a.cancel = context.WithCancel(ctx)
	if a.cfg.ReauthInterval > 0 {
		a.reauthTimer = a.clock.Every(a.cfg.ReauthInterval, a.reauthenticate)
	}
	a.mu.Unlock()

	log.Info().
		Str("name", a.cfg.Name).
		Str("device_type", string(a.cfg.DeviceType)).
		Dur("polling_interval", a.cfg.PollingInterval).
		Dur("sliding_window", a.cfg.SlidingWindow).
		Dur("cooldown", a.cfg.Cooldown).
		Str("cooldown_gate", string(a.cfg.CooldownGate)).
		Msg("Starting rain accessory")

	a.dispatch(a.authenticate)
}

// Stop cancels outstanding timers and detaches the session.
func (a *Accessory) Stop() {
	a.mu.Lock()
	for _, t := range []clock.Timer{a.pollTimer, a.reauthTimer, a.cooldownTimer, a.resetTimer} {
		if t != nil {
			t.Stop()
		}
	}
	a.cancel()
	a.mu.Unlock()

	a.sessions.Close()
	log.Info().Str("name", a.cfg.Name).Msg("Rain accessory stopped")
}

func (a *Accessory) Snapshot() model.Snapshot {
	sessionID := a.sessions.ID()

	a.mu.Lock()
	defer a.mu.Unlock()
	return model.Snapshot{
		Name:           a.cfg.Name,
		DeviceType:     a.cfg.DeviceType,
		Identity:       a.identity,
		RainDetected:   a.rainDetected,
		CooldownActive: a.cooldownActive,
		PollerArmed:    a.pollerArmed,
		LastPoll:       a.lastPoll,
		SessionID:      sessionID,
	}
}

func (a *Accessory) authenticate() {
	if err := a.sessions.Authenticate(a.runContext()); err != nil {
		log.Error().Err(err).Msg("Initial authentication failed")
		return
	}
	a.discover()
}

func (a *Accessory) reauthenticate() {
	a.dispatch(func() {
		err := a.sessions.Reauthenticate(a.runContext())
		a.metrics.Reauth(err == nil)
		if err != nil {
			log.Warn().Err(err).Str("session_id", a.sessions.ID()).Msg("Reauthentication failed, keeping stale session")
			return
		}
		a.discover()
	})
}

func (a *Accessory) runContext() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctx
}
