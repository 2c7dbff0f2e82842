package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/rain-sensor/internal/hap"
	"github.com/thatsimonsguy/rain-sensor/internal/model"
)

// Snapshotter reports the accessory's detection state.
type Snapshotter interface {
	Snapshot() model.Snapshot
}

type Server struct {
	registry *hap.Registry
	status   Snapshotter
	gatherer prometheus.Gatherer
	router   *gin.Engine

	mu   sync.Mutex
	http *http.Server
}

type HealthResponse struct {
	Status    string         `json:"status"`
	Accessory model.Snapshot `json:"accessory"`
}

type CharacteristicResponse struct {
	Service        hap.ServiceType    `json:"service"`
	Characteristic hap.Characteristic `json:"characteristic"`
	Value          interface{}        `json:"value"`
	Writable       bool               `json:"writable"`
}

type ServiceResponse struct {
	Type            hap.ServiceType          `json:"type"`
	Name            string                   `json:"name"`
	Characteristics []CharacteristicResponse `json:"characteristics"`
}

type AccessoryResponse struct {
	Name     string            `json:"name"`
	Services []ServiceResponse `json:"services"`
}

type CharacteristicRequest struct {
	Value interface{} `json:"value"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer builds the router. A nil gatherer leaves /metrics unregistered.
func NewServer(registry *hap.Registry, status Snapshotter, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		registry: registry,
		status:   status,
		gatherer: gatherer,
		router:   gin.New(),
	}
	SetupMiddleware(s.router)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/health", s.getHealth)

	v1 := s.router.Group("/api/v1")
	v1.GET("/accessory", s.getAccessory)
	v1.GET("/characteristics/:name", s.getCharacteristic)
	v1.PUT("/characteristics/:name", s.setCharacteristic)

	if s.gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
}

func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	srv := &http.Server{Addr: addr, Handler: s.router}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	log.Info().Str("address", addr).Msg("Starting REST API server")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Accessory: s.status.Snapshot()})
}

func (s *Server) getAccessory(c *gin.Context) {
	resp := AccessoryResponse{Name: s.status.Snapshot().Name}
	for _, svc := range s.registry.Services() {
		out := ServiceResponse{Type: svc.Type, Name: svc.Name}
		for _, ch := range svc.Characteristics {
			out.Characteristics = append(out.Characteristics, s.describe(svc.Type, ch))
		}
		resp.Services = append(resp.Services, out)
	}
	c.JSON(http.StatusOK, resp)
}

// describe reports a characteristic for listings. Writable characteristics
// show their last pushed value: reading a momentary switch through its
// handler would arm the cooldown.
func (s *Server) describe(svc hap.ServiceType, ch hap.Characteristic) CharacteristicResponse {
	resp := CharacteristicResponse{Service: svc, Characteristic: ch, Writable: s.registry.Writable(svc, ch)}
	if resp.Writable {
		resp.Value, _ = s.registry.Value(svc, ch)
		return resp
	}
	v, err := s.registry.Get(svc, ch)
	if err != nil {
		log.Warn().Err(err).Str("characteristic", string(ch)).Msg("Failed to read characteristic")
	}
	resp.Value = v
	return resp
}

func (s *Server) getCharacteristic(c *gin.Context) {
	ch := hap.Characteristic(c.Param("name"))
	svc, ok := s.registry.Lookup(ch)
	if !ok {
		writeError(c, http.StatusNotFound, "Unknown characteristic")
		return
	}

	v, err := s.registry.Get(svc, ch)
	if err != nil {
		log.Error().Err(err).Str("characteristic", string(ch)).Msg("Failed to read characteristic")
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, CharacteristicResponse{
		Service:        svc,
		Characteristic: ch,
		Value:          v,
		Writable:       s.registry.Writable(svc, ch),
	})
}

func (s *Server) setCharacteristic(c *gin.Context) {
	ch := hap.Characteristic(c.Param("name"))
	svc, ok := s.registry.Lookup(ch)
	if !ok {
		writeError(c, http.StatusNotFound, "Unknown characteristic")
		return
	}

	var req CharacteristicRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Value == nil {
		writeError(c, http.StatusBadRequest, "Invalid JSON payload, expected {\"value\": ...}")
		return
	}

	err := s.registry.Set(svc, ch, req.Value)
	switch {
	case errors.Is(err, hap.ErrReadOnly):
		writeError(c, http.StatusMethodNotAllowed, "Characteristic is read-only")
		return
	case errors.Is(err, hap.ErrInvalidValue):
		writeError(c, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		log.Error().Err(err).Str("characteristic", string(ch)).Msg("Failed to set characteristic")
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("characteristic", string(ch)).Interface("value", req.Value).Msg("Characteristic set via API")
	v, _ := s.registry.Value(svc, ch)
	c.JSON(http.StatusOK, CharacteristicResponse{Service: svc, Characteristic: ch, Value: v, Writable: true})
}

func writeError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, ErrorResponse{Error: message})
}
