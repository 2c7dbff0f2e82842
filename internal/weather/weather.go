// Package weather defines the contract the rain core consumes from a remote
// weather-station API. Concrete clients (see package netatmo) implement it.
package weather

import (
	"context"
	"time"
)

// RainGaugeType is the hardware type tag reported for rain gauge modules.
const RainGaugeType = "NAModule3"

// Credentials are the four upstream secrets needed to open a session.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

type Module struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type Station struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Modules []Module `json:"modules"`
}

// MeasureRequest describes one measurement fetch. Begin is epoch seconds.
type MeasureRequest struct {
	StationID string
	ModuleID  string
	Begin     int64
	Scale     string
	Types     []string
	RealTime  bool
}

// MeasureGroup is a run of equally spaced steps. Each step carries one value
// per requested measurement type.
type MeasureGroup struct {
	Begin  time.Time
	Step   time.Duration
	Values [][]float64
}

type ErrorHandler func(err error)
type WarningHandler func(msg string)

// Session is an authenticated handle to the API. Calls block until the
// upstream responds; callers run them off the state machine's critical path.
type Session interface {
	ListStations(ctx context.Context) ([]Station, error)
	FetchMeasures(ctx context.Context, req MeasureRequest) ([]MeasureGroup, error)

	// OnError and OnWarning subscribe to asynchronous diagnostics.
	OnError(h ErrorHandler)
	OnWarning(h WarningHandler)

	// DetachAll drops every subscription. Must be called before a session is
	// discarded.
	DetachAll()
}

// Authenticator opens sessions.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (Session, error)
}
