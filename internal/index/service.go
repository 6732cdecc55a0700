// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package index mirrors the managed filesystem tree into SQLite. Sync is
// lazy: a directory is rescanned when it is listed and its cached state is
// stale, never on a background schedule.
package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/autobrr/lumen/internal/database"
	"github.com/autobrr/lumen/internal/domain"
	"github.com/autobrr/lumen/internal/filetypes"
	"github.com/autobrr/lumen/internal/identity"
	"github.com/autobrr/lumen/internal/models"
)

// Options configures a Service from the application config.
type Options struct {
	// Root is the managed tree. Paths outside it never resolve.
	Root string

	IgnoreDotfiles     bool
	FilesToIgnore      []string
	ExtensionsToIgnore []string

	// FreshnessWindow bounds how long a validated scan is trusted without
	// even re-statting the directory. Zero means every listing re-stats,
	// but a directory whose mtime has not moved still skips the rescan.
	FreshnessWindow time.Duration
}

// Service owns the directory/file index and its consistency with the disk.
type Service struct {
	db       *database.DB
	dirs     *models.DirectoryStore
	files    *models.FileStore
	tracking *models.CacheTrackingStore
	registry *filetypes.Registry
	canon    *identity.Canonicalizer

	rootFQPN string
	rootSHA  string

	ignoreDotfiles bool
	ignoreNames    map[string]struct{}
	ignoreExts     map[string]struct{}
	freshness      time.Duration

	// sf coalesces concurrent syncs of the same directory; locks serialize a
	// sync against a mark-invalid racing in behind it.
	sf    singleflight.Group
	locks keyedMutex

	hookMu          sync.RWMutex
	onInvalidate    func(dirSHA string)
	onInvalidateAll func()

	syncs atomic.Uint64
}

// NewService canonicalizes the root and wires the stores. The root must
// exist and be a directory.
func NewService(db *database.DB, registry *filetypes.Registry, canon *identity.Canonicalizer, opts Options) (*Service, error) {
	rootFQPN, rootSHA, err := canon.CanonicalDir(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("canonicalize root %s: %w", opts.Root, err)
	}

	info, err := os.Stat(rootFQPN)
	if err != nil {
		return nil, fmt.Errorf("stat root %s: %w", rootFQPN, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", rootFQPN)
	}

	ignoreNames := make(map[string]struct{}, len(opts.FilesToIgnore))
	for _, n := range opts.FilesToIgnore {
		ignoreNames[strings.ToLower(n)] = struct{}{}
	}
	ignoreExts := make(map[string]struct{}, len(opts.ExtensionsToIgnore))
	for _, e := range opts.ExtensionsToIgnore {
		ignoreExts[filetypes.NormalizeExt(e)] = struct{}{}
	}

	return &Service{
		db:             db,
		dirs:           models.NewDirectoryStore(db),
		files:          models.NewFileStore(db),
		tracking:       models.NewCacheTrackingStore(db),
		registry:       registry,
		canon:          canon,
		rootFQPN:       rootFQPN,
		rootSHA:        rootSHA,
		ignoreDotfiles: opts.IgnoreDotfiles,
		ignoreNames:    ignoreNames,
		ignoreExts:     ignoreExts,
		freshness:      opts.FreshnessWindow,
	}, nil
}

// SyncsRun reports the lifetime count of directory scans actually executed
// (short-circuited fresh listings excluded).
func (s *Service) SyncsRun() uint64 {
	return s.syncs.Load()
}

// Root returns the canonical managed root and its SHA.
func (s *Service) Root() (fqpn string, sha string) {
	return s.rootFQPN, s.rootSHA
}

// OnInvalidate registers the hook fired whenever a directory's derived
// caches must be dropped: after every committed sync and on every explicit
// invalidation. The hook runs before the triggering call returns.
func (s *Service) OnInvalidate(perDir func(dirSHA string), all func()) {
	s.hookMu.Lock()
	s.onInvalidate = perDir
	s.onInvalidateAll = all
	s.hookMu.Unlock()
}

func (s *Service) fireInvalidate(dirSHA string) {
	s.hookMu.RLock()
	fn := s.onInvalidate
	s.hookMu.RUnlock()
	if fn != nil {
		fn(dirSHA)
	}
}

// contains checks root containment case-insensitively: identity is
// case-insensitive even though canonical paths keep their on-disk spelling.
func (s *Service) contains(fqpn string) bool {
	lower := strings.ToLower(fqpn)
	root := strings.ToLower(s.rootFQPN)
	return lower == root || strings.HasPrefix(lower, root)
}

func (s *Service) resolve(path string) (fqpn string, sha string, err error) {
	fqpn, sha, err = s.canon.CanonicalDir(path)
	if err != nil {
		return "", "", err
	}
	if !s.contains(fqpn) {
		return "", "", fmt.Errorf("%s is outside the gallery root: %w", path, domain.ErrNotFound)
	}
	return fqpn, sha, nil
}

// Resolve canonicalizes a path and returns its identity, rejecting anything
// outside the managed root.
func (s *Service) Resolve(path string) (fqpn string, sha string, err error) {
	return s.resolve(path)
}

// SearchForDirectory resolves a user-supplied path to its index row without
// touching the disk. Unknown paths map to domain.ErrNotFound.
func (s *Service) SearchForDirectory(ctx context.Context, path string) (*models.Directory, error) {
	_, sha, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	return s.DirectoryBySHA(ctx, sha)
}

// DirectoryBySHA looks a directory up by its path SHA.
func (s *Service) DirectoryBySHA(ctx context.Context, sha string) (*models.Directory, error) {
	d, err := s.dirs.GetBySHA(ctx, sha)
	if err != nil {
		if errors.Is(err, models.ErrDirectoryNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if d.DeletePending {
		return nil, domain.ErrNotFound
	}
	return d, nil
}

// FileByUniqueSHA resolves a file by its external identity. Soft-deleted
// rows still resolve, live rows first: a row awaiting the sweeper keeps its
// URLs working for as long as the bytes exist on disk.
func (s *Service) FileByUniqueSHA(ctx context.Context, uniqueSHA string) (*models.File, error) {
	f, err := s.files.GetByUniqueSHAWithPending(ctx, uniqueSHA)
	if err != nil {
		if errors.Is(err, models.ErrFileNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// ListDirectory syncs a directory if stale and returns its row plus its
// live files and subdirectories in the requested order.
func (s *Service) ListDirectory(ctx context.Context, path string, order SortOrder) (*models.Directory, []models.File, []models.Directory, error) {
	fqpn, sha, err := s.resolve(path)
	if err != nil {
		return nil, nil, nil, err
	}

	if err := s.syncShared(ctx, fqpn, sha); err != nil {
		return nil, nil, nil, err
	}

	dir, err := s.DirectoryBySHA(ctx, sha)
	if err != nil {
		return nil, nil, nil, err
	}

	files, err := s.files.ListByDirectory(ctx, sha, false)
	if err != nil {
		return nil, nil, nil, err
	}
	subdirs, err := s.dirs.ListChildren(ctx, sha)
	if err != nil {
		return nil, nil, nil, err
	}

	SortFiles(files, order)
	SortDirectories(subdirs, order)

	return dir, files, subdirs, nil
}

// Sync brings one directory's index rows in line with the disk. Concurrent
// calls for the same directory coalesce onto a single scan.
func (s *Service) Sync(ctx context.Context, path string) error {
	fqpn, sha, err := s.resolve(path)
	if err != nil {
		return err
	}
	return s.syncShared(ctx, fqpn, sha)
}

func (s *Service) syncShared(ctx context.Context, fqpn, sha string) error {
	_, err, _ := s.sf.Do(sha, func() (any, error) {
		unlock := s.locks.lock(sha)
		defer unlock()
		return nil, s.syncDir(ctx, fqpn, sha)
	})
	return err
}

// MarkInvalid flags a directory stale so the next listing rescans it, and
// purges derived caches before returning. A mark racing an in-progress sync
// waits for it, so the flag always lands after that sync's validation.
func (s *Service) MarkInvalid(ctx context.Context, path string) error {
	fqpn, sha, err := s.resolve(path)
	if err != nil {
		return err
	}

	unlock := s.locks.lock(sha)
	defer unlock()

	// Only indexed directories carry a tracking row. An unknown path has no
	// cached state to invalidate.
	if _, err := s.dirs.GetBySHA(ctx, sha); err != nil {
		if errors.Is(err, models.ErrDirectoryNotFound) {
			log.Trace().Str("path", fqpn).Msg("invalidation for unindexed directory dropped")
			return nil
		}
		return err
	}

	if err := s.tracking.MarkInvalid(ctx, sha); err != nil {
		return fmt.Errorf("mark invalid %s: %w", fqpn, err)
	}

	s.fireInvalidate(sha)
	return nil
}

// MarkAllInvalid flags every tracked directory stale. Coarse fallback used
// when the watcher loses track of individual paths.
func (s *Service) MarkAllInvalid(ctx context.Context) error {
	n, err := s.tracking.InvalidateAll(ctx)
	if err != nil {
		return err
	}
	log.Warn().Int64("directories", n).Msg("invalidated entire index")

	s.hookMu.RLock()
	fn := s.onInvalidateAll
	s.hookMu.RUnlock()
	if fn != nil {
		fn()
	}
	return nil
}

// diskEntry is one surviving filesystem entry from the scan pass.
type diskEntry struct {
	name   string // on-disk spelling
	isLink bool
	info   fs.FileInfo
}

func (s *Service) syncDir(ctx context.Context, fqpn, dirSHA string) error {
	ct, err := s.tracking.Get(ctx, dirSHA)
	if err != nil {
		return err
	}

	// Short-circuit: a validated directory whose own mtime has not moved
	// past the last scan needs no rescan. Entry creates, deletes and renames
	// bump the directory mtime on every platform we care about, and only for
	// direct children, which is exactly the scope of one sync pass. Inside
	// the freshness window even the re-stat is skipped.
	if !ct.Invalidated && ct.LastScan != nil {
		if s.freshness > 0 && time.Since(*ct.LastScan) < s.freshness {
			log.Trace().Str("path", fqpn).Msg("sync short-circuit, within freshness window")
			return nil
		}
		if info, err := os.Stat(fqpn); err == nil && !info.ModTime().After(*ct.LastScan) {
			log.Trace().Str("path", fqpn).Msg("sync short-circuit, directory unchanged")
			return nil
		}
	}

	start := time.Now()
	s.syncs.Add(1)

	entries, err := os.ReadDir(fqpn)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			// The directory vanished between resolution and scan. Soft-delete
			// the row; the sweeper reaps it later.
			if derr := s.dirs.MarkDeletePending(ctx, dirSHA); derr != nil {
				log.Error().Err(derr).Str("path", fqpn).Msg("failed to soft-delete vanished directory")
			}
			s.fireInvalidate(dirSHA)
			return fmt.Errorf("%s: %w", fqpn, domain.ErrNotFound)
		case os.IsPermission(err):
			// Leave the tracking state untouched so the next access retries.
			return fmt.Errorf("%s: %w", fqpn, domain.ErrAccessDenied)
		default:
			return fmt.Errorf("read dir %s: %w", fqpn, err)
		}
	}

	diskFiles, diskDirs := s.classifyEntries(fqpn, entries)

	existing, err := s.files.ListByDirectory(ctx, dirSHA, true)
	if err != nil {
		return err
	}

	// Matching is case-insensitive on the stored name. Prefer live rows when
	// a live and a soft-deleted row share a lowered name.
	byLower := make(map[string]*models.File, len(existing))
	for i := range existing {
		row := &existing[i]
		key := strings.ToLower(row.Name)
		if prev, ok := byLower[key]; ok && !prev.DeletePending {
			continue
		}
		byLower[key] = row
	}

	var (
		creates   []models.File
		updates   []models.File
		deleteIDs []int64
		liveSHAs  []string
	)

	for lower, de := range diskFiles {
		row, known := byLower[lower]
		if known {
			delete(byLower, lower)
		}

		titledName := identity.TitleCase(de.name)
		diskPath := fqpn + de.name
		titledPath := identity.TitleCase(fqpn + de.name)

		if known {
			changed := de.info.Size() != row.Size || de.info.ModTime().Unix() != row.MTime.Unix()
			if changed {
				fileSHA, uniqueSHA, herr := identity.FileSHAs(diskPath, titledPath)
				if herr != nil {
					log.Warn().Err(herr).Str("path", diskPath).Msg("failed to rehash changed file, keeping stale row")
					liveSHAs = append(liveSHAs, row.FileSHA)
					continue
				}
				updated := *row
				updated.Name = titledName
				updated.FileSHA = fileSHA
				updated.UniqueSHA = uniqueSHA
				updated.Size = de.info.Size()
				updated.MTime = de.info.ModTime().UTC()
				updates = append(updates, updated)
				liveSHAs = append(liveSHAs, fileSHA)
				continue
			}

			// Content untouched. Rewrite the row only when the stored name
			// drifted or the row needs reviving, so a repeat sync is a no-op.
			if row.Name != titledName || row.DeletePending {
				updated := *row
				updated.Name = titledName
				updated.DeletePending = false
				updates = append(updates, updated)
			}
			liveSHAs = append(liveSHAs, row.FileSHA)
			continue
		}

		fileSHA, uniqueSHA, herr := identity.FileSHAs(diskPath, titledPath)
		if herr != nil {
			// Unreadable files stay invisible until they can be hashed.
			log.Warn().Err(herr).Str("path", diskPath).Msg("failed to hash new file, skipping")
			continue
		}

		ext := filetypes.NormalizeExt(filepath.Ext(de.name))
		if de.isLink {
			ext = linkExt
		}

		creates = append(creates, models.File{
			Name:          titledName,
			HomeDirectory: dirSHA,
			FileSHA:       fileSHA,
			UniqueSHA:     uniqueSHA,
			Ext:           ext,
			Size:          de.info.Size(),
			MTime:         de.info.ModTime().UTC(),
		})
		liveSHAs = append(liveSHAs, fileSHA)
	}

	// Whatever is left in byLower has no disk counterpart anymore.
	for _, row := range byLower {
		if !row.DeletePending {
			deleteIDs = append(deleteIDs, row.ID)
		}
	}

	children, err := s.dirs.ListChildren(ctx, dirSHA)
	if err != nil {
		return err
	}
	childBySHA := make(map[string]models.Directory, len(children))
	for _, c := range children {
		childBySHA[c.SHA] = c
	}

	sep := string(filepath.Separator)
	var subdirUpserts []models.Directory
	for _, name := range diskDirs {
		childFQPN := fqpn + name + sep
		childSHA := identity.HashString(strings.ToLower(childFQPN))
		if existing, ok := childBySHA[childSHA]; ok {
			delete(childBySHA, childSHA)
			if existing.FQPN == childFQPN {
				continue
			}
			// Same identity, stored spelling drifted after a case rename.
		}
		parent := dirSHA
		subdirUpserts = append(subdirUpserts, models.Directory{
			SHA:       childSHA,
			FQPN:      childFQPN,
			ParentSHA: &parent,
		})
	}
	var subdirPending []string
	for sha := range childBySHA {
		subdirPending = append(subdirPending, sha)
	}

	var parentSHA *string
	if fqpn != s.rootFQPN {
		p := identity.HashString(strings.ToLower(parentDir(fqpn)))
		parentSHA = &p
	}

	now := time.Now().UTC()
	combined := identity.CombinedSHA(liveSHAs)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sync tx: %w", err)
	}
	defer tx.Rollback()

	txDirs := models.NewDirectoryStore(tx)
	txFiles := models.NewFileStore(tx)
	txTracking := models.NewCacheTrackingStore(tx)

	if err := txDirs.Upsert(ctx, &models.Directory{SHA: dirSHA, FQPN: fqpn, ParentSHA: parentSHA}); err != nil {
		return err
	}

	for i := range creates {
		if err := txFiles.Insert(ctx, &creates[i]); err != nil {
			return err
		}
	}
	for i := range updates {
		if err := txFiles.Update(ctx, &updates[i]); err != nil {
			return err
		}
	}
	if err := txFiles.MarkDeletePending(ctx, deleteIDs); err != nil {
		return err
	}

	for i := range subdirUpserts {
		if err := txDirs.Upsert(ctx, &subdirUpserts[i]); err != nil {
			return err
		}
	}
	for _, sha := range subdirPending {
		if err := txDirs.MarkDeletePending(ctx, sha); err != nil {
			return err
		}
	}

	if err := txDirs.UpdateSummary(ctx, dirSHA, len(liveSHAs), len(diskDirs), combined, now); err != nil {
		return err
	}
	if err := txTracking.MarkValid(ctx, dirSHA, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sync tx: %w", err)
	}

	if len(creates)+len(updates)+len(deleteIDs)+len(subdirUpserts)+len(subdirPending) > 0 {
		log.Debug().
			Str("path", fqpn).
			Int("created", len(creates)).
			Int("updated", len(updates)).
			Int("deleted", len(deleteIDs)).
			Dur("elapsed", time.Since(start)).
			Msg("directory synced")
	}

	s.fireInvalidate(dirSHA)
	return nil
}

// classifyEntries applies the ignore rules and splits survivors into files
// and subdirectories, keyed by lowered name and carrying the on-disk
// spelling.
func (s *Service) classifyEntries(fqpn string, entries []os.DirEntry) (map[string]diskEntry, map[string]string) {
	diskFiles := make(map[string]diskEntry)
	diskDirs := make(map[string]string)

	for _, e := range entries {
		name := e.Name()
		if s.ignoreDotfiles && strings.HasPrefix(name, ".") {
			continue
		}
		lower := strings.ToLower(name)
		if _, ok := s.ignoreNames[lower]; ok {
			continue
		}

		if e.IsDir() {
			diskDirs[lower] = name
			continue
		}

		isLink := e.Type()&fs.ModeSymlink != 0
		if !isLink && !e.Type().IsRegular() {
			continue
		}

		var (
			info fs.FileInfo
			err  error
		)
		if isLink {
			// Follow the link for metadata; dangling links stay invisible.
			info, err = os.Stat(fqpn + name)
			if err == nil && info.IsDir() {
				// Directory symlinks are skipped: their canonical identity
				// belongs to the target, which is indexed on its own path.
				continue
			}
		} else {
			info, err = e.Info()
		}
		if err != nil {
			log.Trace().Err(err).Str("name", name).Msg("skipping unstattable entry")
			continue
		}

		if !isLink {
			ext := filetypes.NormalizeExt(filepath.Ext(name))
			if _, ignored := s.ignoreExts[ext]; ignored {
				continue
			}
			// Unknown extensions stay hidden. Extensionless names normalize
			// to the fallback entry and are surfaced as generic files.
			if !s.registry.ExistsByExt(ext) {
				continue
			}
		}

		diskFiles[lower] = diskEntry{name: name, isLink: isLink, info: info}
	}

	return diskFiles, diskDirs
}

func parentDir(fqpn string) string {
	sep := string(filepath.Separator)
	trimmed := strings.TrimSuffix(fqpn, sep)
	parent := filepath.Dir(trimmed)
	if !strings.HasSuffix(parent, sep) {
		parent += sep
	}
	return parent
}

// keyedMutex hands out one mutex per key, dropping entries when the last
// holder releases.
type keyedMutex struct {
	mu   sync.Mutex
	held map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.held == nil {
		k.held = make(map[string]*keyedLock)
	}
	l, ok := k.held[key]
	if !ok {
		l = &keyedLock{}
		k.held[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.held, key)
		}
		k.mu.Unlock()
	}
}
