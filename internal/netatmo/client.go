// Package netatmo is a small Netatmo Weather API client implementing the
// weather.Authenticator and weather.Session contracts.
package netatmo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/thatsimonsguy/rain-sensor/internal/weather"
)

const (
	DefaultBaseURL = "https://api.netatmo.com"
	DefaultTimeout = 15 * time.Second

	scopeReadStation = "read_station"
	refreshMargin    = time.Minute
)

var ErrCredentialsRejected = errors.New("netatmo rejected credentials")

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("netatmo status %d (code %d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("netatmo status %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL    string
	http       *http.Client
	breaker    *gobreaker.CircuitBreaker
	newBackOff func() backoff.BackOff
	now        func() time.Time
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithBackOff sets the retry policy used while authenticating.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = f }
}

func WithNow(f func() time.Time) Option {
	return func(c *Client) { c.now = f }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = time.Second
			bo.MaxElapsedTime = 30 * time.Second
			return backoff.WithMaxRetries(bo, 3)
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "netatmo",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// 4xx responses say nothing about upstream health.
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Netatmo circuit breaker changed state")
		},
	})
	return c
}

// Authenticate runs the password grant, retrying transport and server
// failures. Rejected credentials are not retried.
func (c *Client) Authenticate(ctx context.Context, creds weather.Credentials) (weather.Session, error) {
	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {creds.ClientID},
		"client_secret": {creds.ClientSecret},
		"username":      {creds.Username},
		"password":      {creds.Password},
		"scope":         {scopeReadStation},
	}

	var tok *token
	op := func() error {
		var err error
		tok, err = c.requestToken(ctx, form)
		if errors.Is(err, ErrCredentialsRejected) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Msg("Netatmo authentication failed, retrying")
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(c.newBackOff(), ctx), notify); err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	return &Session{client: c, creds: creds, tok: tok}, nil
}

type token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	expiry       time.Time
}

func (c *Client) requestToken(ctx context.Context, form url.Values) (*token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tok token
	if err := c.do(req, &tok); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && rejected(apiErr.Status) {
			return nil, fmt.Errorf("%w: %s", ErrCredentialsRejected, apiErr.Message)
		}
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, errors.New("token response without access_token")
	}
	tok.expiry = c.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return &tok, nil
}

// rejected reports whether a token endpoint status means the grant itself was
// refused. Timeouts and throttling are retried.
func rejected(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return status >= 400 && status < 500
}

type envelope struct {
	Body   json.RawMessage `json:"body"`
	Status string          `json:"status"`
}

func (c *Client) get(ctx context.Context, path, accessToken string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var env envelope
	if err := c.do(req, &env); err != nil {
		return err
	}
	if len(env.Body) == 0 || string(env.Body) == "null" {
		return nil
	}
	return json.Unmarshal(env.Body, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, decodeError(resp)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("decode %s: %w", req.URL.Path, err)
		}
		return nil, nil
	})
	return err
}

// decodeError understands both the API envelope {"error":{"code","message"}}
// and the OAuth form {"error":"invalid_grant","error_description":...}.
func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(b))}

	var raw struct {
		Error       json.RawMessage `json:"error"`
		Description string          `json:"error_description"`
	}
	if json.Unmarshal(b, &raw) != nil || len(raw.Error) == 0 {
		return apiErr
	}

	var nested struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	var flat string
	switch {
	case json.Unmarshal(raw.Error, &nested) == nil:
		apiErr.Code = nested.Code
		apiErr.Message = nested.Message
	case json.Unmarshal(raw.Error, &flat) == nil:
		apiErr.Message = flat
		if raw.Description != "" {
			apiErr.Message += ": " + raw.Description
		}
	}
	return apiErr
}
