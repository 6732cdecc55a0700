// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Server exposes the metrics registry on its own listener, separate from
// the gallery API.
type Server struct {
	manager *Manager
	host    string
	port    int

	httpServer *http.Server
}

func NewServer(manager *Manager, host string, port int) *Server {
	return &Server{manager: manager, host: host, port: port}
}

func (s *Server) Start() error {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(s.manager.GetRegistry(), promhttp.HandlerOpts{}))

	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Starting metrics server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
