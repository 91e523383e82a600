package slave

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/simonvetter/modbus"
)

type ServerConfig struct {
	URL            string `json:"url"` // tcp://0.0.0.0:5502
	MaxClients     uint   `json:"max_clients"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type Server struct {
	url string
	srv *modbus.ModbusServer
}

func NewServer(cfg ServerConfig, handler modbus.RequestHandler) (*Server, error) {
	timeout := 30 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	maxClients := cfg.MaxClients
	if maxClients == 0 {
		maxClients = 4
	}

	srv, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        cfg.URL,
		Timeout:    timeout,
		MaxClients: maxClients,
	}, handler)
	if err != nil {
		return nil, fmt.Errorf("failed to create modbus server on %s: %w", cfg.URL, err)
	}

	return &Server{url: cfg.URL, srv: srv}, nil
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.srv.Start(); err != nil {
		return fmt.Errorf("failed to start modbus server on %s: %w", s.url, err)
	}
	log.Info().Str("url", s.url).Msg("modbus server listening")

	<-ctx.Done()

	if err := s.srv.Stop(); err != nil {
		log.Warn().Err(err).Str("url", s.url).Msg("modbus server stop failed")
	}
	return ctx.Err()
}
