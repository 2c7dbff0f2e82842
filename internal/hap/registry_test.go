package hap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.AddService(Service{
		Type:            ServiceAccessoryInformation,
		Name:            "Rain",
		Characteristics: []Characteristic{CharManufacturer, CharModel, CharName},
		Static: map[Characteristic]interface{}{
			CharManufacturer: "Netatmo",
			CharModel:        "Rain Gauge",
			CharName:         "Rain",
		},
	})
	r.AddService(Service{
		Type:            ServiceSwitch,
		Name:            "Rain",
		Characteristics: []Characteristic{CharOn},
	})
	return r
}

func TestRegistry_StaticValues(t *testing.T) {
	r := newTestRegistry()

	v, err := r.Get(ServiceAccessoryInformation, CharManufacturer)
	require.NoError(t, err)
	assert.Equal(t, "Netatmo", v)
}

func TestRegistry_GetUsesHandler(t *testing.T) {
	r := newTestRegistry()
	calls := 0
	r.OnGet(ServiceSwitch, CharOn, func() interface{} {
		calls++
		return true
	})

	v, err := r.Get(ServiceSwitch, CharOn)
	require.NoError(t, err)
	assert.Equal(t, true, v)
	assert.Equal(t, 1, calls)
}

func TestRegistry_UnknownCharacteristic(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Get(ServiceSwitch, CharLeakDetected)
	assert.True(t, errors.Is(err, ErrUnknownCharacteristic))

	err = r.Set(ServiceAccessoryInformation, CharOn, true)
	assert.True(t, errors.Is(err, ErrUnknownCharacteristic))
}

func TestRegistry_UnknownService(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Get(ServiceLeakSensor, CharLeakDetected)
	assert.True(t, errors.Is(err, ErrUnknownService))
	assert.False(t, errors.Is(err, ErrUnknownCharacteristic))

	err = r.Set(ServiceLeakSensor, CharLeakDetected, 1)
	assert.True(t, errors.Is(err, ErrUnknownService))
}

func TestRegistry_SetWithoutHandlerIsReadOnly(t *testing.T) {
	r := newTestRegistry()

	err := r.Set(ServiceSwitch, CharOn, true)
	assert.True(t, errors.Is(err, ErrReadOnly))
	assert.False(t, r.Writable(ServiceSwitch, CharOn))
}

func TestRegistry_SetCallsHandler(t *testing.T) {
	r := newTestRegistry()
	var got interface{}
	r.OnSet(ServiceSwitch, CharOn, func(v interface{}) error {
		got = v
		return nil
	})

	require.NoError(t, r.Set(ServiceSwitch, CharOn, true))
	assert.Equal(t, true, got)
	assert.True(t, r.Writable(ServiceSwitch, CharOn))
}

func TestRegistry_UpdateFansOutAndCaches(t *testing.T) {
	r := newTestRegistry()
	var a, b []Update
	r.Subscribe(func(u Update) { a = append(a, u) })
	cancel := r.Subscribe(func(u Update) { b = append(b, u) })

	r.UpdateCharacteristic(ServiceSwitch, CharOn, true)
	cancel()
	r.UpdateCharacteristic(ServiceSwitch, CharOn, false)

	assert.Len(t, a, 2)
	assert.Len(t, b, 1)
	assert.Equal(t, Update{Service: ServiceSwitch, Characteristic: CharOn, Value: true}, b[0])

	v, ok := r.Value(ServiceSwitch, CharOn)
	assert.True(t, ok)
	assert.Equal(t, false, v)
}

func TestRegistry_Lookup(t *testing.T) {
	r := newTestRegistry()

	svc, ok := r.Lookup(CharOn)
	assert.True(t, ok)
	assert.Equal(t, ServiceSwitch, svc)

	_, ok = r.Lookup(CharLeakDetected)
	assert.False(t, ok)
}

func TestLeakStateString(t *testing.T) {
	assert.Equal(t, "LEAK_DETECTED", LeakDetected.String())
	assert.Equal(t, "LEAK_NOT_DETECTED", LeakNotDetected.String())
}
