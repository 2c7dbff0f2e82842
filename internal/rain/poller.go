package rain

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/rain-sensor/internal/hap"
	"github.com/thatsimonsguy/rain-sensor/internal/metrics"
	"github.com/thatsimonsguy/rain-sensor/internal/model"
	"github.com/thatsimonsguy/rain-sensor/internal/weather"
)

// discover resolves the gauge once. A listing failure allows a later
// successful reauthentication to try again; a missing gauge does not.
func (a *Accessory) discover() {
	a.mu.Lock()
	if a.discoveryStarted {
		a.mu.Unlock()
		return
	}
	a.discoveryStarted = true
	a.mu.Unlock()

	sess := a.sessions.Current()
	stations, err := sess.ListStations(a.runContext())
	if err != nil {
		a.metrics.Discovery(metrics.DiscoveryError)
		log.Error().Err(err).Msg("Failed to list weather stations")
		a.mu.Lock()
		a.discoveryStarted = false
		a.mu.Unlock()
		return
	}

	id, err := Discover(stations)
	if errors.Is(err, ErrModuleNotFound) {
		a.metrics.Discovery(metrics.DiscoveryNotFound)
		log.Error().
			Err(err).
			Int("stations", len(stations)).
			Str("module_type", weather.RainGaugeType).
			Msg("Rain gauge discovery failed, polling disabled")
		a.notify("Rain gauge not found", a.cfg.Name+": no rain gauge module on the account, polling disabled")
		return
	}

	a.metrics.Discovery(metrics.DiscoveryFound)
	log.Info().
		Str("station_id", id.StationID).
		Str("module_id", id.ModuleID).
		Msg("Rain gauge discovered")
	a.arm(id)
}

// arm records the identity and starts the poll timer, exactly once.
func (a *Accessory) arm(id model.Identity) {
	a.mu.Lock()
	if a.pollerArmed {
		a.mu.Unlock()
		return
	}
	a.identity = id
	a.pollerArmed = true
	a.pollTimer = a.clock.Every(a.cfg.PollingInterval, a.PollOnce)
	a.mu.Unlock()

	a.PollOnce()
}

// PollOnce issues one measurement fetch over the trailing window. Fetches are
// not de-duplicated: whichever completes last sets the detection.
func (a *Accessory) PollOnce() {
	a.mu.Lock()
	if !a.pollerArmed {
		a.mu.Unlock()
		return
	}
	if a.cooldownActive && a.cfg.CooldownGate.GatesPolls() {
		a.mu.Unlock()
		a.metrics.Poll(metrics.PollSkipped)
		log.Debug().Msg("Cooldown active, skipping poll")
		return
	}
	id := a.identity
	now := a.clock.Now()
	ctx := a.ctx
	a.mu.Unlock()

	begin, end := PollWindow(now, a.cfg.SlidingWindow)
	req := weather.MeasureRequest{
		StationID: id.StationID,
		ModuleID:  id.ModuleID,
		Begin:     begin,
		Scale:     MeasureScale,
		Types:     []string{MeasureType},
		RealTime:  true,
	}
	sess := a.sessions.Current()

	log.Debug().
		Str("module_id", id.ModuleID).
		Int64("date_begin", begin).
		Int64("date_end", end).
		Msg("Polling rain gauge")

	a.dispatch(func() {
		groups, err := sess.FetchMeasures(ctx, req)
		if err != nil {
			a.completePoll(nil, &FetchError{Identity: id, Err: err})
			return
		}
		a.completePoll(groups, nil)
	})
}

func (a *Accessory) completePoll(groups []weather.MeasureGroup, err error) {
	if err != nil {
		a.metrics.Poll(metrics.PollError)
		log.Error().Err(err).Msg("Rain poll failed, keeping last detection")
		return
	}

	detected := Aggregate(groups)

	a.mu.Lock()
	prev := a.rainDetected
	gated := detected && a.cooldownActive && a.cfg.CooldownGate.GatesPolls()
	if !gated {
		a.rainDetected = detected
	}
	a.awaitingPoll = false
	a.lastPoll = a.clock.Now()
	current := a.rainDetected
	a.mu.Unlock()

	a.metrics.Poll(metrics.PollOK)
	a.metrics.RainDetected(current)

	log.Debug().
		Bool("sample_rain", detected).
		Bool("rain_detected", current).
		Bool("gated", gated).
		Int("groups", len(groups)).
		Msg("Rain poll completed")

	if current == prev {
		return
	}
	log.Info().Bool("rain_detected", current).Msg("Rain detection changed")

	if a.cfg.DeviceType == model.DeviceLeak {
		a.host.UpdateCharacteristic(hap.ServiceLeakSensor, hap.CharLeakDetected, leakState(current))
	}
	if current {
		a.notify("Rain detected", a.cfg.Name+": rainfall measured in the last "+a.cfg.SlidingWindow.String())
	}
}

// armCooldownLocked starts the cooldown unless it is disabled or already
// running. Caller holds a.mu.
func (a *Accessory) armCooldownLocked() bool {
	if a.cfg.Cooldown <= 0 || a.cooldownActive {
		return false
	}
	a.cooldownActive = true
	a.cooldownTimer = a.clock.AfterFunc(a.cfg.Cooldown, a.expireCooldown)
	return true
}

// expireCooldown releases the cooldown and polls at once, so the next switch
// read is decided by a sample taken after the cooldown.
func (a *Accessory) expireCooldown() {
	a.mu.Lock()
	a.cooldownActive = false
	a.cooldownTimer = nil
	a.awaitingPoll = true
	a.mu.Unlock()

	a.metrics.CooldownActive(false)
	log.Info().Msg("Rain cooldown expired")

	a.PollOnce()
}

func (a *Accessory) notify(title, msg string) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.Send(title, msg); err != nil {
		log.Warn().Err(err).Str("title", title).Msg("Failed to send notification")
	}
}
