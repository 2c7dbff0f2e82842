package rain

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/thatsimonsguy/rain-sensor/internal/clock"
	"github.com/thatsimonsguy/rain-sensor/internal/hap"
	"github.com/thatsimonsguy/rain-sensor/internal/model"
	"github.com/thatsimonsguy/rain-sensor/internal/weather"
)

var testStart = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fetchResult struct {
	groups []weather.MeasureGroup
	err    error
}

func wet() fetchResult { return fetchResult{groups: groups([]float64{0, 0, 3.2})} }
func dry() fetchResult { return fetchResult{groups: groups([]float64{0, 0, 0})} }

// fakeSession serves fetch results in call order, repeating the last one.
type fakeSession struct {
	name string
	log  *eventLog

	mu              sync.Mutex
	stations        []weather.Station
	listErrs        []error
	listCalls       int
	results         []fetchResult
	requests        []weather.MeasureRequest
	errorHandlers   []weather.ErrorHandler
	warningHandlers []weather.WarningHandler
}

func newFakeSession(name string, log *eventLog, results ...fetchResult) *fakeSession {
	return &fakeSession{
		name:     name,
		log:      log,
		stations: rainStations(),
		results:  results,
	}
}

func rainStations() []weather.Station {
	return []weather.Station{{
		ID:   "70:ee:50:00:00:01",
		Name: "Home",
		Modules: []weather.Module{
			{ID: "02:00:00:00:00:01", Name: "Outdoor", Type: "NAModule1"},
			{ID: "05:00:00:00:00:01", Name: "Rain", Type: weather.RainGaugeType},
		},
	}}
}

func (s *fakeSession) ListStations(ctx context.Context) ([]weather.Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.listCalls
	s.listCalls++
	if call < len(s.listErrs) && s.listErrs[call] != nil {
		return nil, s.listErrs[call]
	}
	return s.stations, nil
}

func (s *fakeSession) FetchMeasures(ctx context.Context, req weather.MeasureRequest) ([]weather.MeasureGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.results) == 0 {
		return nil, nil
	}
	r := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}
	return r.groups, r.err
}

func (s *fakeSession) OnError(h weather.ErrorHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorHandlers = append(s.errorHandlers, h)
}

func (s *fakeSession) OnWarning(h weather.WarningHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warningHandlers = append(s.warningHandlers, h)
}

func (s *fakeSession) DetachAll() {
	s.mu.Lock()
	s.errorHandlers = nil
	s.warningHandlers = nil
	s.mu.Unlock()
	if s.log != nil {
		s.log.add("detach:" + s.name)
	}
}

func (s *fakeSession) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *fakeSession) handlerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errorHandlers) + len(s.warningHandlers)
}

type authStep struct {
	session *fakeSession
	err     error
}

// fakeAuth plays back steps, repeating the last one.
type fakeAuth struct {
	log *eventLog

	mu    sync.Mutex
	steps []authStep
	calls int
}

func (a *fakeAuth) Authenticate(ctx context.Context, creds weather.Credentials) (weather.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.log != nil {
		a.log.add("auth")
	}
	i := a.calls
	a.calls++
	if i >= len(a.steps) {
		i = len(a.steps) - 1
	}
	step := a.steps[i]
	if step.err != nil {
		return nil, step.err
	}
	return step.session, nil
}

type fakeNotifier struct {
	titles []string
}

func (n *fakeNotifier) Send(title, message string) error {
	n.titles = append(n.titles, title)
	return nil
}

type recordingMetrics struct {
	detected    []bool
	cooldown    []bool
	polls       []string
	reauths     []bool
	discoveries []string
}

func (m *recordingMetrics) RainDetected(v bool)   { m.detected = append(m.detected, v) }
func (m *recordingMetrics) CooldownActive(v bool) { m.cooldown = append(m.cooldown, v) }
func (m *recordingMetrics) Poll(r string)         { m.polls = append(m.polls, r) }
func (m *recordingMetrics) Reauth(ok bool)        { m.reauths = append(m.reauths, ok) }
func (m *recordingMetrics) Discovery(r string)    { m.discoveries = append(m.discoveries, r) }

// taskQueue holds dispatched work until the test runs it, so completions can
// be reordered.
type taskQueue struct {
	mu    sync.Mutex
	tasks []func()
}

func (q *taskQueue) dispatch(f func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, f)
}

func (q *taskQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// run removes the i'th queued task and runs it.
func (q *taskQueue) run(i int) {
	q.mu.Lock()
	f := q.tasks[i]
	q.tasks = append(q.tasks[:i:i], q.tasks[i+1:]...)
	q.mu.Unlock()
	f()
}

func testConfig(dt model.DeviceType) Config {
	return Config{
		Name:            "Rain",
		DeviceType:      dt,
		PollingInterval: time.Minute,
		SlidingWindow:   30 * time.Minute,
		Cooldown:        10 * time.Minute,
		ReauthInterval:  24 * time.Hour,
		CooldownGate:    model.GateBoth,
		Credentials: weather.Credentials{
			ClientID:     "id",
			ClientSecret: "secret",
			Username:     "user@example.com",
			Password:     "pw",
		},
	}
}

type harness struct {
	acc      *Accessory
	clock    *clock.Fake
	host     *hap.Registry
	notifier *fakeNotifier
	metrics  *recordingMetrics
}

// newHarness builds an Accessory on a fake clock. With a nil dispatch,
// upstream work runs inline.
func newHarness(t *testing.T, cfg Config, auth weather.Authenticator, dispatch func(func())) *harness {
	t.Helper()
	if dispatch == nil {
		dispatch = func(f func()) { f() }
	}
	h := &harness{
		clock:    clock.NewFake(testStart),
		host:     hap.NewRegistry(),
		notifier: &fakeNotifier{},
		metrics:  &recordingMetrics{},
	}
	h.acc = New(cfg, Deps{
		Host:     h.host,
		Auth:     auth,
		Clock:    h.clock,
		Metrics:  h.metrics,
		Notifier: h.notifier,
		Dispatch: dispatch,
	})
	for _, s := range h.acc.Services() {
		h.host.AddService(s)
	}
	t.Cleanup(h.acc.Stop)
	return h
}

func (h *harness) leak(t *testing.T) hap.LeakState {
	t.Helper()
	v, err := h.host.Get(hap.ServiceLeakSensor, hap.CharLeakDetected)
	if err != nil {
		t.Fatalf("get LeakDetected: %v", err)
	}
	return v.(hap.LeakState)
}

func (h *harness) switchOn(t *testing.T) bool {
	t.Helper()
	v, err := h.host.Get(hap.ServiceSwitch, hap.CharOn)
	if err != nil {
		t.Fatalf("get On: %v", err)
	}
	return v.(bool)
}
