// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package api wires the HTTP surface: directory listings, original file
// bytes, SHA-addressed thumbnails, and archive interiors.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/lumen/internal/api/handlers"
	"github.com/autobrr/lumen/internal/database"
	"github.com/autobrr/lumen/internal/domain"
	"github.com/autobrr/lumen/internal/filetypes"
	"github.com/autobrr/lumen/internal/index"
	"github.com/autobrr/lumen/internal/layout"
	"github.com/autobrr/lumen/internal/thumbnail"
)

// Server is the gallery HTTP server.
type Server struct {
	config   *domain.Config
	db       *database.DB
	index    *index.Service
	engine   *layout.Engine
	thumbs   *thumbnail.Service
	registry *filetypes.Registry

	httpServer *http.Server
}

func NewServer(cfg *domain.Config, db *database.DB, idx *index.Service, engine *layout.Engine, thumbs *thumbnail.Service, registry *filetypes.Registry) *Server {
	return &Server{
		config:   cfg,
		db:       db,
		index:    idx,
		engine:   engine,
		thumbs:   thumbs,
		registry: registry,
	}
}

// Handler builds the router. Exposed for tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}).Handler)

	// Listing payloads compress well; thumbnails and media do not, but the
	// adapter skips already-compressed content types on its own.
	if compress, err := httpcompression.DefaultAdapter(); err != nil {
		log.Warn().Err(err).Msg("response compression disabled")
	} else {
		r.Use(compress)
	}

	galleryHandler := handlers.NewGalleryHandler(s.index, s.engine)
	fileHandler := handlers.NewFileHandler(s.db, s.index, s.registry)
	thumbnailHandler := handlers.NewThumbnailHandler(s.thumbs)
	healthHandler := handlers.NewHealthHandler(s.db)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health/liveness", healthHandler.Liveness)
		r.Get("/health/readiness", healthHandler.Readiness)
	})

	r.Get("/thumbnail/{sha}/{size}", thumbnailHandler.Get)
	r.Get("/archive/{usha}", galleryHandler.Archive)

	// Everything else resolves inside the managed root: directories list,
	// files stream.
	r.Get("/*", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/" || req.URL.Path[len(req.URL.Path)-1] == '/' {
			galleryHandler.List(w, req)
			return
		}
		fileHandler.Get(w, req)
	})

	return r
}

func (s *Server) ListenAndServe() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprintf("%d", s.config.Port))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Starting gallery server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
