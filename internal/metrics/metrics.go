// Package metrics records rain detection telemetry to Datadog and/or
// Prometheus.
package metrics

// Poll results.
const (
	PollOK      = "ok"
	PollError   = "error"
	PollSkipped = "skipped"
)

// Discovery results.
const (
	DiscoveryFound    = "found"
	DiscoveryNotFound = "not_found"
	DiscoveryError    = "error"
)

type Recorder interface {
	RainDetected(detected bool)
	CooldownActive(active bool)
	Poll(result string)
	Reauth(ok bool)
	Discovery(result string)
}

type Nop struct{}

func (Nop) RainDetected(bool)   {}
func (Nop) CooldownActive(bool) {}
func (Nop) Poll(string)         {}
func (Nop) Reauth(bool)         {}
func (Nop) Discovery(string)    {}

// Multi fans every call out to each recorder.
type Multi []Recorder

func (m Multi) RainDetected(v bool) {
	for _, r := range m {
		r.RainDetected(v)
	}
}

func (m Multi) CooldownActive(v bool) {
	for _, r := range m {
		r.CooldownActive(v)
	}
}

func (m Multi) Poll(result string) {
	for _, r := range m {
		r.Poll(result)
	}
}

func (m Multi) Reauth(ok bool) {
	for _, r := range m {
		r.Reauth(ok)
	}
}

func (m Multi) Discovery(result string) {
	for _, r := range m {
		r.Discovery(result)
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func okResult(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
