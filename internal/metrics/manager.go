// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/lumen/internal/database"
)

type Manager struct {
	registry         *prometheus.Registry
	galleryCollector *GalleryCollector
}

func NewManager(db *database.DB, src Sources) *Manager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	galleryCollector := NewGalleryCollector(db, src)
	registry.MustRegister(galleryCollector)

	log.Info().Msg("Metrics manager initialized with gallery collector")

	return &Manager{
		registry:         registry,
		galleryCollector: galleryCollector,
	}
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}
