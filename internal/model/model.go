package model

import (
	"strings"
	"time"
)

// DeviceType selects how rain detection is projected to the host.
type DeviceType string

const (
	DeviceLeak   DeviceType = "Leak"
	DeviceSwitch DeviceType = "Switch"
)

// ParseDeviceType maps a config value to a DeviceType. Anything unrecognised
// falls back to the leak sensor.
func ParseDeviceType(s string) DeviceType {
	if strings.EqualFold(strings.TrimSpace(s), string(DeviceSwitch)) {
		return DeviceSwitch
	}
	return DeviceLeak
}

// CooldownGate controls what an active cooldown suppresses.
type CooldownGate string

const (
	GatePolls CooldownGate = "polls" // skip polls; late results may not set rain
	GateReads CooldownGate = "reads" // switch reads return false
	GateBoth  CooldownGate = "both"
)

func ParseCooldownGate(s string) (CooldownGate, bool) {
	switch CooldownGate(strings.ToLower(strings.TrimSpace(s))) {
	case "", GateBoth:
		return GateBoth, true
	case GatePolls:
		return GatePolls, true
	case GateReads:
		return GateReads, true
	default:
		return "", false
	}
}

func (g CooldownGate) GatesPolls() bool { return g == GatePolls || g == GateBoth }
func (g CooldownGate) GatesReads() bool { return g == GateReads || g == GateBoth }

// Identity is the station/module pair resolved by discovery.
type Identity struct {
	StationID string `json:"station_id"`
	ModuleID  string `json:"module_id"`
}

func (i Identity) Resolved() bool {
	return i.StationID != "" && i.ModuleID != ""
}

// Snapshot is a point-in-time copy of the detection state.
type Snapshot struct {
	Name           string     `json:"name"`
	DeviceType     DeviceType `json:"device_type"`
	Identity       Identity   `json:"identity"`
	RainDetected   bool       `json:"rain_detected"`
	CooldownActive bool       `json:"cooldown_active"`
	PollerArmed    bool       `json:"poller_armed"`
	LastPoll       time.Time  `json:"last_poll,omitempty"`
	SessionID      string     `json:"session_id,omitempty"`
}
