package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/hydronic-controller/internal/controller"
	"github.com/thatsimonsguy/hydronic-controller/internal/history"
	"github.com/thatsimonsguy/hydronic-controller/internal/model"
	"github.com/thatsimonsguy/hydronic-controller/internal/zones"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

type StatusSource interface {
	Status() controller.Status
}

type EventLog interface {
	Recent(n int) ([]history.Event, error)
}

type Server struct {
	status   StatusSource
	registry *zones.Registry
	events   EventLog
	metrics  http.Handler
	now      func() time.Time
}

type ZonesResponse struct {
	Zones []zones.ZoneReport `json:"zones"`
	Loops []zones.LoopReport `json:"loops"`
}

type ZoneDemandRequest struct {
	Fancoil    model.FancoilDemand    `json:"fancoil"`
	Thermostat model.ThermostatDemand `json:"thermostat"`
}

type LoopValveRequest struct {
	Switch string `json:"switch"`
}

type SystemRequest struct {
	On *bool `json:"on"`
}

type SystemResponse struct {
	On bool `json:"on"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer wires the API. events and metrics may be nil when history or metrics are disabled.
func NewServer(status StatusSource, registry *zones.Registry, events EventLog, metrics http.Handler) *Server {
	return &Server{
		status:   status,
		registry: registry,
		events:   events,
		metrics:  metrics,
		now:      time.Now,
	}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/status", s.getStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/system", s.getSystem).Methods(http.MethodGet)
	r.HandleFunc("/api/system", s.setSystem).Methods(http.MethodPut)
	r.HandleFunc("/api/zones", s.getZones).Methods(http.MethodGet)
	r.HandleFunc("/api/zones/{zone}/demand", s.setZoneDemand).Methods(http.MethodPut)
	r.HandleFunc("/api/loops/{loop}", s.setLoopValve).Methods(http.MethodPut)
	r.HandleFunc("/api/events", s.getEvents).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		r.ServeHTTP(w, req)
	})
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("address", addr).Msg("Starting REST API server")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.status.Status())
}

func (s *Server) getSystem(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, SystemResponse{On: s.registry.SystemOn()})
}

func (s *Server) setSystem(w http.ResponseWriter, r *http.Request) {
	var req SystemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.On == nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	s.registry.SetSystemOn(*req.On)
	log.Info().Bool("on", *req.On).Msg("System switch updated via API")
	s.writeJSON(w, http.StatusOK, SystemResponse{On: *req.On})
}

func (s *Server) getZones(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	s.writeJSON(w, http.StatusOK, ZonesResponse{
		Zones: s.registry.Zones(now),
		Loops: s.registry.Loops(now),
	})
}

func (s *Server) setZoneDemand(w http.ResponseWriter, r *http.Request) {
	zone, err := strconv.Atoi(mux.Vars(r)["zone"])
	if err != nil {
		s.writeError(w, http.StatusNotFound, "Zone not found")
		return
	}

	var req ZoneDemandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if err := s.registry.ReportZone(zone, req.Fancoil, req.Thermostat, s.now()); err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	log.Debug().Int("zone", zone).Interface("demand", req).Msg("Zone demand reported via API")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setLoopValve(w http.ResponseWriter, r *http.Request) {
	loop, err := strconv.Atoi(mux.Vars(r)["loop"])
	if err != nil {
		s.writeError(w, http.StatusNotFound, "Loop not found")
		return
	}

	var req LoopValveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	sw, err := model.ParseLoopValveSwitch(req.Switch)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid switch state. Valid states: none, one, both")
		return
	}

	if err := s.registry.ReportLoopValve(loop, sw, s.now()); err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	log.Debug().Int("loop", loop).Str("switch", sw.String()).Msg("Loop valve reported via API")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.writeError(w, http.StatusServiceUnavailable, "History is disabled")
		return
	}

	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxEventLimit {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid limit. Must be between 1 and %d", maxEventLimit))
			return
		}
		limit = n
	}

	events, err := s.events.Recent(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get events")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
