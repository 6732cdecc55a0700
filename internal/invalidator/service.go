// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package invalidator turns filesystem notifications under the managed root
// into directory invalidations against the index. Events are coalesced by
// containing directory and debounced; no sync happens here. The watcher is
// rebuilt on a schedule to defend against platform watcher leaks.
package invalidator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/lumen/internal/domain"
	"github.com/autobrr/lumen/pkg/debounce"
)

const (
	defaultDebounce = 5 * time.Second
	defaultSoftCap  = 1024

	flushTimeout = 30 * time.Second

	startupAttempts = 10
	startupDelay    = 500 * time.Millisecond
	startupMaxDelay = time.Minute
)

// Marker is the slice of the index the invalidator drives.
type Marker interface {
	MarkInvalid(ctx context.Context, path string) error
	MarkAllInvalid(ctx context.Context) error
}

// Options configures a Service from the application config.
type Options struct {
	// Root is the managed tree, watched recursively.
	Root string

	// Debounce is the quiet period after the last event before the buffer
	// flushes. Zero means the 5 second default.
	Debounce time.Duration

	// RestartSchedule is a single duration or a list of HH:MM wall-clock
	// times. Empty means hourly.
	RestartSchedule []string

	// SoftKeyCap bounds the buffer's key count; beyond it a single
	// whole-index invalidation replaces the per-directory ones.
	SoftKeyCap int
}

// Service owns the filesystem watcher and the coalescing buffer.
type Service struct {
	marker   Marker
	root     string
	buf      *buffer
	deb      *debounce.Debouncer
	schedule restartSchedule

	mu      sync.Mutex
	watcher *fsnotify.Watcher

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	flushed atomic.Uint64
}

// NewService validates options and builds the service. The watcher itself is
// not started until Start.
func NewService(marker Marker, opts Options) (*Service, error) {
	if !filepath.IsAbs(opts.Root) {
		return nil, fmt.Errorf("watch root must be absolute: %s", opts.Root)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.SoftKeyCap <= 0 {
		opts.SoftKeyCap = defaultSoftCap
	}

	schedule, err := parseRestartSchedule(opts.RestartSchedule)
	if err != nil {
		return nil, err
	}

	return &Service{
		marker:   marker,
		root:     filepath.Clean(opts.Root),
		buf:      newBuffer(opts.SoftKeyCap),
		deb:      debounce.New(opts.Debounce),
		schedule: schedule,
		stop:     make(chan struct{}),
	}, nil
}

// Start brings up the watcher and the restart scheduler. Startup failures
// are retried with capped exponential backoff off the caller's goroutine;
// the rest of the system stays usable while the watcher is down, it just
// loses automatic invalidation.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if err := s.startWithRetry(ctx); err != nil {
			log.Error().Err(err).Msg("filesystem watcher failed to start, automatic invalidation disabled")
			return
		}

		s.restartLoop(ctx)
	}()
}

// Stop flushes buffered invalidations and tears the watcher down.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.deb.Stop()

	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if w != nil {
		_ = w.Close()
	}

	s.wg.Wait()
}

func (s *Service) startWithRetry(ctx context.Context) error {
	return retry.Do(
		func() error {
			w, err := s.newWatcher()
			if err != nil {
				return err
			}
			s.swapWatcher(w)
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(startupAttempts),
		retry.Delay(startupDelay),
		retry.MaxDelay(startupMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Uint("attempt", n+1).Msg("filesystem watcher startup failed, retrying")
		}),
	)
}

// newWatcher creates an fsnotify watcher subscribed to every directory under
// the root. fsnotify watches are per-directory, so the recursive subscription
// is a walk.
func (s *Service) newWatcher() (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	if err := watchTree(w, s.root); err != nil {
		_ = w.Close()
		return nil, err
	}

	return w, nil
}

func watchTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal; their contents
			// converge via lazy sync when they become readable.
			log.Trace().Err(err).Str("path", path).Msg("skipping unwatchable path")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to watch directory")
		}
		return nil
	})
}

// swapWatcher installs a new watcher, starts its consumer, and closes the
// previous one. Closing the old watcher ends its consumer goroutine; events
// mid-delivery are dropped and covered by the next sync on access.
func (s *Service) swapWatcher(w *fsnotify.Watcher) {
	s.mu.Lock()
	old := s.watcher
	s.watcher = w
	s.mu.Unlock()

	s.wg.Add(1)
	go s.consume(w)

	if old != nil {
		_ = old.Close()
	}
}

func (s *Service) consume(w *fsnotify.Watcher) {
	defer s.wg.Done()

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			s.handleEvent(w, ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			// Transient watcher hiccups are absorbed; the scheduled restart
			// recovers anything lost.
			log.Warn().Err(err).Msg("filesystem watcher error")
		}
	}
}

func (s *Service) handleEvent(w *fsnotify.Watcher, ev fsnotify.Event) {
	name := filepath.Clean(ev.Name)

	// The containing directory is the invalidation unit. A rename surfaces
	// as two events (old path, new path), so both sides land here.
	s.buf.add(filepath.Dir(name))

	// New directories extend the recursive subscription. The subtree's
	// contents index lazily when first listed.
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(name); err == nil && info.IsDir() {
			if err := watchTree(w, name); err != nil {
				log.Warn().Err(err).Str("path", name).Msg("failed to watch created directory")
			}
		}
	}

	s.deb.Do(s.flush)
}

// flush applies the buffered snapshot to the index. It runs on the debounce
// timer goroutine and only flips flags, so it stays short.
func (s *Service) flush() {
	dirs, overflow := s.buf.swap()
	if len(dirs) == 0 && !overflow {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if overflow {
		if err := s.marker.MarkAllInvalid(ctx); err != nil {
			log.Error().Err(err).Msg("coarse invalidation failed")
			return
		}
		s.flushed.Add(1)
		return
	}

	for dir := range dirs {
		if err := s.marker.MarkInvalid(ctx, dir); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Events for paths outside the root or never indexed carry no
				// cached state to invalidate.
				continue
			}
			log.Error().Err(err).Str("path", dir).Msg("directory invalidation failed")
			continue
		}
		s.flushed.Add(1)
	}

	log.Debug().Int("directories", len(dirs)).Msg("invalidation buffer flushed")
}

// FlushedInvalidations reports the lifetime count of invalidations applied
// to the index.
func (s *Service) FlushedInvalidations() uint64 {
	return s.flushed.Load()
}

// restartLoop rebuilds the watcher on the configured schedule until Stop.
func (s *Service) restartLoop(ctx context.Context) {
	for {
		timer := time.NewTimer(s.schedule.next(time.Now()))
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		// Flush before the swap so buffered work is not stranded behind a
		// fresh quiet period.
		s.deb.Flush()

		w, err := s.newWatcher()
		if err != nil {
			log.Error().Err(err).Msg("scheduled watcher restart failed, keeping previous watcher")
			continue
		}
		s.swapWatcher(w)
		log.Debug().Msg("filesystem watcher restarted")
	}
}
