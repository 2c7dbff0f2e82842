package netatmo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/thatsimonsguy/rain-sensor/internal/weather"
)

// Session is an authenticated Netatmo handle. It refreshes its access token
// when close to expiry.
type Session struct {
	client *Client
	creds  weather.Credentials

	mu  sync.Mutex
	tok *token

	handlersMu      sync.RWMutex
	errorHandlers   []weather.ErrorHandler
	warningHandlers []weather.WarningHandler
}

func (s *Session) OnError(h weather.ErrorHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.errorHandlers = append(s.errorHandlers, h)
}

func (s *Session) OnWarning(h weather.WarningHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.warningHandlers = append(s.warningHandlers, h)
}

func (s *Session) DetachAll() {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.errorHandlers = nil
	s.warningHandlers = nil
}

func (s *Session) emitError(err error) {
	s.handlersMu.RLock()
	handlers := append([]weather.ErrorHandler(nil), s.errorHandlers...)
	s.handlersMu.RUnlock()
	for _, h := range handlers {
		h(err)
	}
}

func (s *Session) emitWarning(msg string) {
	s.handlersMu.RLock()
	handlers := append([]weather.WarningHandler(nil), s.warningHandlers...)
	s.handlersMu.RUnlock()
	for _, h := range handlers {
		h(msg)
	}
}

func (s *Session) accessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	now := s.client.now()
	current := s.tok
	if now.Before(current.expiry.Add(-refreshMargin)) {
		s.mu.Unlock()
		return current.AccessToken, nil
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {current.RefreshToken},
		"client_id":     {s.creds.ClientID},
		"client_secret": {s.creds.ClientSecret},
	}
	tok, err := s.client.requestToken(ctx, form)
	if err == nil {
		s.tok = tok
	}
	s.mu.Unlock()

	if err != nil {
		if now.Before(current.expiry) {
			s.emitWarning(fmt.Sprintf("access token refresh failed, using current token: %v", err))
			return current.AccessToken, nil
		}
		err = fmt.Errorf("refresh access token: %w", err)
		s.emitError(err)
		return "", err
	}
	return tok.AccessToken, nil
}

type stationsBody struct {
	Devices []struct {
		ID          string `json:"_id"`
		StationName string `json:"station_name"`
		Type        string `json:"type"`
		Modules     []struct {
			ID         string `json:"_id"`
			ModuleName string `json:"module_name"`
			Type       string `json:"type"`
		} `json:"modules"`
	} `json:"devices"`
}

func (s *Session) ListStations(ctx context.Context) ([]weather.Station, error) {
	tok, err := s.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var body stationsBody
	if err := s.client.get(ctx, "/api/getstationsdata", tok, nil, &body); err != nil {
		return nil, fmt.Errorf("get stations data: %w", err)
	}

	stations := make([]weather.Station, 0, len(body.Devices))
	for _, d := range body.Devices {
		st := weather.Station{ID: d.ID, Name: d.StationName, Type: d.Type}
		for _, m := range d.Modules {
			st.Modules = append(st.Modules, weather.Module{ID: m.ID, Name: m.ModuleName, Type: m.Type})
		}
		stations = append(stations, st)
	}
	return stations, nil
}

type measureGroup struct {
	BegTime  int64        `json:"beg_time"`
	StepTime int64        `json:"step_time"`
	Value    [][]*float64 `json:"value"`
}

func (s *Session) FetchMeasures(ctx context.Context, req weather.MeasureRequest) ([]weather.MeasureGroup, error) {
	tok, err := s.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{
		"device_id":  {req.StationID},
		"module_id":  {req.ModuleID},
		"scale":      {req.Scale},
		"type":       {strings.Join(req.Types, ",")},
		"date_begin": {strconv.FormatInt(req.Begin, 10)},
		"optimize":   {"true"},
		"real_time":  {strconv.FormatBool(req.RealTime)},
	}

	var body []measureGroup
	if err := s.client.get(ctx, "/api/getmeasure", tok, q, &body); err != nil {
		return nil, fmt.Errorf("get measure: %w", err)
	}
	if len(body) == 0 {
		s.emitWarning(fmt.Sprintf("no measures for module %s since %d", req.ModuleID, req.Begin))
	}

	groups := make([]weather.MeasureGroup, 0, len(body))
	for _, g := range body {
		out := weather.MeasureGroup{
			Begin:  time.Unix(g.BegTime, 0).UTC(),
			Step:   time.Duration(g.StepTime) * time.Second,
			Values: make([][]float64, 0, len(g.Value)),
		}
		for _, step := range g.Value {
			vals := make([]float64, 0, len(step))
			for _, v := range step {
				// Missing samples come back as null.
				if v != nil {
					vals = append(vals, *v)
				}
			}
			out.Values = append(out.Values, vals)
		}
		groups = append(groups, out)
	}
	return groups, nil
}
