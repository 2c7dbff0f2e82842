package hap

import (
	"fmt"
	"sync"
)

type key struct {
	svc ServiceType
	c   Characteristic
}

// Registry is an in-process Host. Transports (HTTP, MQTT) read and write
// characteristics through it and subscribe to pushed updates.
type Registry struct {
	mu        sync.RWMutex
	services  []Service
	getters   map[key]GetHandler
	setters   map[key]SetHandler
	values    map[key]interface{}
	listeners map[int]func(Update)
	nextID    int
}

func NewRegistry() *Registry {
	return &Registry{
		getters:   make(map[key]GetHandler),
		setters:   make(map[key]SetHandler),
		values:    make(map[key]interface{}),
		listeners: make(map[int]func(Update)),
	}
}

func (r *Registry) AddService(s Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services = append(r.services, s)
	for c, v := range s.Static {
		r.values[key{s.Type, c}] = v
	}
}

func (r *Registry) Services() []Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Service, len(r.services))
	copy(out, r.services)
	return out
}

func (r *Registry) OnGet(svc ServiceType, c Characteristic, h GetHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getters[key{svc, c}] = h
}

func (r *Registry) OnSet(svc ServiceType, c Characteristic, h SetHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setters[key{svc, c}] = h
}

// UpdateCharacteristic caches the value and fans it out to subscribers.
func (r *Registry) UpdateCharacteristic(svc ServiceType, c Characteristic, value interface{}) {
	r.mu.Lock()
	r.values[key{svc, c}] = value
	listeners := make([]func(Update), 0, len(r.listeners))
	for id := 0; id < r.nextID; id++ {
		if l, ok := r.listeners[id]; ok {
			listeners = append(listeners, l)
		}
	}
	r.mu.Unlock()

	u := Update{Service: svc, Characteristic: c, Value: value}
	for _, l := range listeners {
		l(u)
	}
}

// Get reads a characteristic through its handler, falling back to the last
// pushed or static value.
func (r *Registry) Get(svc ServiceType, c Characteristic) (interface{}, error) {
	r.mu.RLock()
	h, hasHandler := r.getters[key{svc, c}]
	v, hasValue := r.values[key{svc, c}]
	err := r.check(svc, c)
	r.mu.RUnlock()

	if err != nil {
		return nil, err
	}
	if hasHandler {
		return h(), nil
	}
	if hasValue {
		return v, nil
	}
	return nil, nil
}

func (r *Registry) Set(svc ServiceType, c Characteristic, value interface{}) error {
	r.mu.RLock()
	h, ok := r.setters[key{svc, c}]
	err := r.check(svc, c)
	r.mu.RUnlock()

	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s.%s: %w", svc, c, ErrReadOnly)
	}
	return h(value)
}

// Value returns the last pushed value without invoking a handler.
func (r *Registry) Value(svc ServiceType, c Characteristic) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[key{svc, c}]
	return v, ok
}

func (r *Registry) Writable(svc ServiceType, c Characteristic) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.setters[key{svc, c}]
	return ok
}

// Subscribe registers fn for every pushed update. The returned func removes it.
func (r *Registry) Subscribe(fn func(Update)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners, id)
	}
}

// Lookup finds the service exposing characteristic c.
func (r *Registry) Lookup(c Characteristic) (ServiceType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.services {
		for _, sc := range s.Characteristics {
			if sc == c {
				return s.Type, true
			}
		}
	}
	return "", false
}

// check reports whether svc is registered and exposes c. Caller holds r.mu.
func (r *Registry) check(svc ServiceType, c Characteristic) error {
	for _, s := range r.services {
		if s.Type != svc {
			continue
		}
		for _, sc := range s.Characteristics {
			if sc == c {
				return nil
			}
		}
		return fmt.Errorf("%s.%s: %w", svc, c, ErrUnknownCharacteristic)
	}
	return fmt.Errorf("%s: %w", svc, ErrUnknownService)
}
