// Package hap models the slice of a HomeKit-style host the rain accessory
// needs: services made of characteristics, get/set handler registration and
// pushed value updates.
package hap

import "errors"

type ServiceType string

const (
	ServiceAccessoryInformation ServiceType = "AccessoryInformation"
	ServiceLeakSensor           ServiceType = "LeakSensor"
	ServiceSwitch               ServiceType = "Switch"
)

type Characteristic string

const (
	CharManufacturer Characteristic = "Manufacturer"
	CharModel        Characteristic = "Model"
	CharName         Characteristic = "Name"
	CharLeakDetected Characteristic = "LeakDetected"
	CharStatusActive Characteristic = "StatusActive"
	CharOn           Characteristic = "On"
)

// LeakState mirrors the HAP LeakDetected enum values.
type LeakState int

const (
	LeakNotDetected LeakState = 0
	LeakDetected    LeakState = 1
)

func (s LeakState) String() string {
	if s == LeakDetected {
		return "LEAK_DETECTED"
	}
	return "LEAK_NOT_DETECTED"
}

var (
	ErrUnknownService        = errors.New("unknown service")
	ErrUnknownCharacteristic = errors.New("unknown characteristic")
	ErrReadOnly              = errors.New("characteristic is read-only")
	ErrInvalidValue          = errors.New("invalid characteristic value")
)

// Service is a named group of characteristics. Static values (accessory
// information) are served without a handler.
type Service struct {
	Type            ServiceType                    `json:"type"`
	Name            string                         `json:"name"`
	Characteristics []Characteristic               `json:"characteristics"`
	Static          map[Characteristic]interface{} `json:"-"`
}

type GetHandler func() interface{}
type SetHandler func(value interface{}) error

// Update is a value pushed by the accessory for host subscribers.
type Update struct {
	Service        ServiceType
	Characteristic Characteristic
	Value          interface{}
}

// Host is the capability injected into an accessory.
type Host interface {
	OnGet(svc ServiceType, c Characteristic, h GetHandler)
	OnSet(svc ServiceType, c Characteristic, h SetHandler)
	UpdateCharacteristic(svc ServiceType, c Characteristic, value interface{})
}
