// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package thumbnail generates and caches the three preview sizes for every
// renderable media kind. Thumbnails are keyed by content SHA so duplicate
// files share one record.
package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/autobrr/lumen/internal/database"
	"github.com/autobrr/lumen/internal/domain"
	"github.com/autobrr/lumen/internal/filetypes"
	"github.com/autobrr/lumen/internal/models"
)

const (
	// generationTimeout bounds a single extraction. A stuck decoder (usually
	// ffmpeg on a truncated file) must not pin a semaphore slot forever.
	generationTimeout = 60 * time.Second

	memoTTL     = 5 * time.Minute
	queueBuffer = 1024

	defaultBatchSize        = 5
	defaultConcurrencyLimit = 2
)

// Options configures a Service from the application config.
type Options struct {
	Boxes            map[domain.ThumbnailSize]domain.Box
	ConcurrencyLimit int64
	BatchSize        int
}

// Service renders, stores, and serves thumbnails. On-demand requests and
// the background pipeline share one semaphore so total decode pressure
// stays bounded.
type Service struct {
	db       *database.DB
	thumbs   *models.ThumbnailStore
	files    *models.FileStore
	dirs     *models.DirectoryStore
	registry *filetypes.Registry

	boxes    map[domain.ThumbnailSize]domain.Box
	backends []Backend
	sentinel map[domain.ThumbnailSize][]byte

	sem  *semaphore.Weighted
	sf   singleflight.Group
	memo *ttlcache.Cache[string, []byte]

	batchSize int
	queue     chan string
	pendingMu sync.Mutex
	pending   map[string]struct{}

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	generated atomic.Uint64
	failed    atomic.Uint64
}

// NewService probes the available backends, pre-renders the broken-media
// sentinels, and starts the pipeline worker.
func NewService(db *database.DB, registry *filetypes.Registry, opts Options) (*Service, error) {
	if len(opts.Boxes) == 0 {
		return nil, errors.New("thumbnail boxes not configured")
	}
	if opts.ConcurrencyLimit < 1 {
		opts.ConcurrencyLimit = defaultConcurrencyLimit
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = defaultBatchSize
	}

	backends := []Backend{imageBackend{}, pdfBackend{}, archiveBackend{}}
	if vb, err := newVideoBackend(); err != nil {
		log.Warn().Err(err).Msg("video thumbnails disabled")
	} else {
		backends = append(backends, vb)
	}

	sentinel := make(map[domain.ThumbnailSize][]byte, len(opts.Boxes))
	for size, box := range opts.Boxes {
		b, err := renderSentinel(box)
		if err != nil {
			return nil, fmt.Errorf("render %s sentinel: %w", size, err)
		}
		sentinel[size] = b
	}

	s := &Service{
		db:        db,
		thumbs:    models.NewThumbnailStore(db),
		files:     models.NewFileStore(db),
		dirs:      models.NewDirectoryStore(db),
		registry:  registry,
		boxes:     opts.Boxes,
		backends:  backends,
		sentinel:  sentinel,
		sem:       semaphore.NewWeighted(opts.ConcurrencyLimit),
		memo:      ttlcache.New(ttlcache.Options[string, []byte]{}.SetDefaultTTL(memoTTL)),
		batchSize: opts.BatchSize,
		queue:     make(chan string, queueBuffer),
		pending:   make(map[string]struct{}),
		stop:      make(chan struct{}),
	}

	s.wg.Add(1)
	go s.worker()

	return s, nil
}

// Close drains the pipeline and releases the memo cache.
func (s *Service) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	s.memo.Close()
}

func memoKey(fileSHA string, size domain.ThumbnailSize) string {
	return fileSHA + "/" + string(size)
}

// Get returns the thumbnail blob for one content SHA and size, generating
// all sizes on demand when the record is missing or the slot is empty.
// Content with no renderable kind maps to domain.ErrNotFound.
func (s *Service) Get(ctx context.Context, fileSHA string, size domain.ThumbnailSize) ([]byte, error) {
	if b, ok := s.memo.Get(memoKey(fileSHA, size)); ok {
		return b, nil
	}

	rec, err := s.thumbs.Get(ctx, fileSHA)
	if err != nil && !errors.Is(err, models.ErrThumbnailNotFound) {
		return nil, err
	}
	if err == nil {
		if b := rec.Slot(size); len(b) > 0 {
			s.memo.Set(memoKey(fileSHA, size), b, ttlcache.DefaultTTL)
			return b, nil
		}
	}

	// Coalesce concurrent misses for the same content onto one generation.
	_, err, _ = s.sf.Do(fileSHA, func() (any, error) {
		return nil, s.generateAndStore(ctx, fileSHA)
	})
	if err != nil {
		return nil, err
	}

	rec, err = s.thumbs.Get(ctx, fileSHA)
	if err != nil {
		if errors.Is(err, models.ErrThumbnailNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	b := rec.Slot(size)
	if len(b) == 0 {
		return nil, domain.ErrNotFound
	}

	s.memo.Set(memoKey(fileSHA, size), b, ttlcache.DefaultTTL)
	return b, nil
}

// Exists reports whether a stored record has the requested slot filled,
// without triggering generation.
func (s *Service) Exists(ctx context.Context, fileSHA string, size domain.ThumbnailSize) (bool, error) {
	rec, err := s.thumbs.Get(ctx, fileSHA)
	if err != nil {
		if errors.Is(err, models.ErrThumbnailNotFound) {
			return false, nil
		}
		return false, err
	}
	return len(rec.Slot(size)) > 0, nil
}

// Warm queues background generation for every renderable file that might be
// missing a record. Already-queued SHAs are dropped; a full queue sheds the
// request rather than blocking a page render.
func (s *Service) Warm(files []models.File) {
	for _, f := range files {
		if !s.registry.GetByExt(f.Ext).HasOwnThumbnail() {
			continue
		}

		s.pendingMu.Lock()
		if _, queued := s.pending[f.FileSHA]; queued {
			s.pendingMu.Unlock()
			continue
		}
		s.pending[f.FileSHA] = struct{}{}
		s.pendingMu.Unlock()

		select {
		case s.queue <- f.FileSHA:
		default:
			s.pendingMu.Lock()
			delete(s.pending, f.FileSHA)
			s.pendingMu.Unlock()
			log.Debug().Str("sha", f.FileSHA).Msg("thumbnail queue full, dropping warm request")
		}
	}
}

// Invalidate empties the stored slots and hot cache for one content SHA.
// The next access regenerates.
func (s *Service) Invalidate(ctx context.Context, fileSHA string) error {
	if err := s.thumbs.Clear(ctx, fileSHA); err != nil {
		return err
	}
	for size := range s.boxes {
		s.memo.Delete(memoKey(fileSHA, size))
	}
	return nil
}

func (s *Service) worker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stop:
			return
		case sha := <-s.queue:
			batch := []string{sha}
		collect:
			for len(batch) < s.batchSize {
				select {
				case next := <-s.queue:
					batch = append(batch, next)
				default:
					break collect
				}
			}
			s.processBatch(batch)
		}
	}
}

func (s *Service) processBatch(batch []string) {
	ctx := context.Background()
	start := time.Now()

	var (
		mu      sync.Mutex
		records []*models.ThumbnailRecord
		wg      sync.WaitGroup
	)

	for _, sha := range batch {
		wg.Add(1)
		go func(sha string) {
			defer wg.Done()
			defer func() {
				s.pendingMu.Lock()
				delete(s.pending, sha)
				s.pendingMu.Unlock()
			}()

			if rec, err := s.thumbs.Get(ctx, sha); err == nil && rec.Complete() {
				return
			}

			rec, err := s.generate(ctx, sha)
			if err != nil {
				if !errors.Is(err, domain.ErrNotFound) {
					log.Error().Err(err).Str("sha", sha).Msg("background thumbnail generation failed")
				}
				return
			}

			mu.Lock()
			records = append(records, rec)
			mu.Unlock()
		}(sha)
	}
	wg.Wait()

	if len(records) == 0 {
		return
	}

	if err := s.thumbs.UpsertBatch(ctx, s.db, records); err != nil {
		log.Error().Err(err).Int("records", len(records)).Msg("failed to store thumbnail batch")
		return
	}

	log.Debug().
		Int("requested", len(batch)).
		Int("generated", len(records)).
		Dur("elapsed", time.Since(start)).
		Msg("thumbnail batch stored")
}

func (s *Service) generateAndStore(ctx context.Context, fileSHA string) error {
	rec, err := s.generate(ctx, fileSHA)
	if err != nil {
		return err
	}
	return s.thumbs.Upsert(ctx, rec)
}

// generate renders all configured sizes for one content SHA. Files whose
// every occurrence is delete-pending, and kinds with no backend, map to
// domain.ErrNotFound. Corrupt media yields the sentinel record so the
// decode is never retried on every request.
func (s *Service) generate(ctx context.Context, fileSHA string) (*models.ThumbnailRecord, error) {
	f, err := s.files.FirstLiveByFileSHA(ctx, fileSHA)
	if err != nil {
		if errors.Is(err, models.ErrFileNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	backend := s.backendFor(s.registry.GetByExt(f.Ext))
	if backend == nil {
		return nil, domain.ErrNotFound
	}

	dir, err := s.dirs.GetBySHA(ctx, f.HomeDirectory)
	if err != nil {
		return nil, err
	}

	diskPath, err := ResolveDiskPath(dir.FQPN, f.Name)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, generationTimeout)
	defer cancel()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	img, err := backend.Extract(ctx, diskPath)
	if err != nil {
		if errors.Is(err, domain.ErrCorrupt) {
			log.Warn().Err(err).Str("path", diskPath).Msg("media failed to decode, storing sentinel")
			s.failed.Add(1)
			return s.sentinelRecord(fileSHA), nil
		}
		s.failed.Add(1)
		return nil, err
	}

	rec := &models.ThumbnailRecord{SHA: fileSHA}
	for size, box := range s.boxes {
		b, err := EncodeJPEG(FitInside(img, box))
		if err != nil {
			return nil, err
		}
		rec.SetSlot(size, b)
	}

	s.generated.Add(1)
	return rec, nil
}

// GenerationStats reports lifetime generation successes and failures.
func (s *Service) GenerationStats() (generated, failed uint64) {
	return s.generated.Load(), s.failed.Load()
}

func (s *Service) sentinelRecord(fileSHA string) *models.ThumbnailRecord {
	rec := &models.ThumbnailRecord{SHA: fileSHA}
	for size := range s.boxes {
		rec.SetSlot(size, s.sentinel[size])
	}
	return rec
}

func (s *Service) backendFor(ft filetypes.Filetype) Backend {
	for _, b := range s.backends {
		if b.Handles(ft) {
			return b
		}
	}
	return nil
}

// ResolveDiskPath maps a stored title-cased name back to the on-disk
// spelling. The lowered name is tried first; a directory listing settles
// case drift on case-sensitive filesystems.
func ResolveDiskPath(dirFQPN, storedName string) (string, error) {
	candidate := dirFQPN + strings.ToLower(storedName)
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}

	entries, err := os.ReadDir(dirFQPN)
	if err != nil {
		if os.IsNotExist(err) {
			return "", domain.ErrNotFound
		}
		return "", err
	}

	for _, e := range entries {
		if strings.EqualFold(e.Name(), storedName) {
			return dirFQPN + e.Name(), nil
		}
	}

	return "", fmt.Errorf("%s in %s: %w", storedName, dirFQPN, domain.ErrNotFound)
}
