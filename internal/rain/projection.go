package rain

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/rain-sensor/internal/hap"
	"github.com/thatsimonsguy/rain-sensor/internal/model"
)

func (a *Accessory) register() {
	if a.host == nil {
		return
	}
	switch a.cfg.DeviceType {
	case model.DeviceSwitch:
		a.host.OnGet(hap.ServiceSwitch, hap.CharOn, func() interface{} { return a.SwitchOn() })
		a.host.OnSet(hap.ServiceSwitch, hap.CharOn, func(v interface{}) error {
			on, err := toBool(v)
			if err != nil {
				return err
			}
			a.SetSwitchOn(on)
			return nil
		})
	default:
		a.host.OnGet(hap.ServiceLeakSensor, hap.CharLeakDetected, func() interface{} { return a.LeakDetected() })
		a.host.OnGet(hap.ServiceLeakSensor, hap.CharStatusActive, func() interface{} { return a.StatusActive() })
	}
}

// LeakDetected is a pure read of the last detection.
func (a *Accessory) LeakDetected() hap.LeakState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return leakState(a.rainDetected)
}

func (a *Accessory) StatusActive() bool { return true }

// SwitchOn reports the detection as a momentary contact. A true read arms the
// cooldown and schedules the switch back to off. After a cooldown it stays off
// until a poll has completed.
func (a *Accessory) SwitchOn() bool {
	a.mu.Lock()
	if a.cooldownActive && a.cfg.CooldownGate.GatesReads() {
		a.mu.Unlock()
		return false
	}
	if !a.rainDetected || a.awaitingPoll {
		a.mu.Unlock()
		return false
	}
	armed := a.armCooldownLocked()
	a.switchOn = true
	a.scheduleResetLocked()
	a.mu.Unlock()

	if armed {
		a.metrics.CooldownActive(true)
		log.Info().Dur("cooldown", a.cfg.Cooldown).Msg("Rain cooldown armed")
	}
	return true
}

// SetSwitchOn pushes a host write back out to subscribers.
func (a *Accessory) SetSwitchOn(on bool) {
	a.mu.Lock()
	a.switchOn = on
	if on {
		a.scheduleResetLocked()
	}
	a.mu.Unlock()

	log.Debug().Bool("on", on).Msg("Switch set")
	a.host.UpdateCharacteristic(hap.ServiceSwitch, hap.CharOn, on)
}

// scheduleResetLocked replaces any pending auto-reset. Caller holds a.mu.
func (a *Accessory) scheduleResetLocked() {
	if a.resetTimer != nil {
		a.resetTimer.Stop()
	}
	a.resetTimer = a.clock.AfterFunc(a.cfg.AutoResetDelay, a.autoReset)
}

func (a *Accessory) autoReset() {
	a.mu.Lock()
	a.switchOn = false
	a.mu.Unlock()

	a.host.UpdateCharacteristic(hap.ServiceSwitch, hap.CharOn, false)
}

func leakState(detected bool) hap.LeakState {
	if detected {
		return hap.LeakDetected
	}
	return hap.LeakNotDetected
}

func toBool(v interface{}) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case float64:
		return b != 0, nil
	case int:
		return b != 0, nil
	default:
		return false, fmt.Errorf("%v (%T): %w", v, v, hap.ErrInvalidValue)
	}
}
