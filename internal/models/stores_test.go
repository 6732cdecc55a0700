// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autobrr/lumen/internal/database"
	"github.com/autobrr/lumen/internal/domain"
	"github.com/autobrr/lumen/internal/identity"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "lumen.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	return db
}

func seedDirectory(t *testing.T, db *database.DB, fqpn string) *Directory {
	t.Helper()

	d := &Directory{SHA: identity.HashString(fqpn), FQPN: fqpn}
	require.NoError(t, NewDirectoryStore(db).Upsert(context.Background(), d))
	return d
}

func TestDirectoryStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	dirs := NewDirectoryStore(db)

	root := seedDirectory(t, db, "/pics/")
	child := &Directory{
		SHA:       identity.HashString("/pics/holiday/"),
		FQPN:      "/pics/holiday/",
		ParentSHA: &root.SHA,
	}
	require.NoError(t, dirs.Upsert(ctx, child))

	got, err := dirs.GetBySHA(ctx, child.SHA)
	require.NoError(t, err)
	require.Equal(t, "/pics/holiday/", got.FQPN)
	require.NotNil(t, got.ParentSHA)
	require.Equal(t, root.SHA, *got.ParentSHA)

	children, err := dirs.ListChildren(ctx, root.SHA)
	require.NoError(t, err)
	require.Len(t, children, 1)

	require.NoError(t, dirs.MarkDeletePending(ctx, child.SHA))
	children, err = dirs.ListChildren(ctx, root.SHA)
	require.NoError(t, err)
	require.Empty(t, children)

	// Upsert on the same SHA revives the soft-deleted row.
	require.NoError(t, dirs.Upsert(ctx, child))
	children, err = dirs.ListChildren(ctx, root.SHA)
	require.NoError(t, err)
	require.Len(t, children, 1)

	_, err = dirs.GetBySHA(ctx, "no-such-sha")
	require.ErrorIs(t, err, ErrDirectoryNotFound)
}

func TestFileStoreUpdatePreservesRowIdentity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	files := NewFileStore(db)

	dir := seedDirectory(t, db, "/pics/")

	f := &File{
		Name:          "A.Jpg",
		HomeDirectory: dir.SHA,
		FileSHA:       "sha-content",
		UniqueSHA:     "sha-unique",
		Ext:           ".jpg",
		Size:          100,
		MTime:         time.Now().UTC(),
	}
	require.NoError(t, files.Insert(ctx, f))
	require.NotZero(t, f.ID)

	// Case rename: only the stored name changes, same row id.
	f.Name = "A.JPG"
	require.NoError(t, files.Update(ctx, f))

	got, err := files.GetByUniqueSHA(ctx, "sha-unique")
	require.NoError(t, err)
	require.Equal(t, f.ID, got.ID)
	require.Equal(t, "A.JPG", got.Name)

	require.NoError(t, files.MarkDeletePending(ctx, []int64{f.ID}))
	_, err = files.GetByUniqueSHA(ctx, "sha-unique")
	require.ErrorIs(t, err, ErrFileNotFound)

	// The pending-tolerant lookup still resolves the row, so URLs in flight
	// keep working through the grace period.
	got, err = files.GetByUniqueSHAWithPending(ctx, "sha-unique")
	require.NoError(t, err)
	require.Equal(t, f.ID, got.ID)
	require.True(t, got.DeletePending)

	listed, err := files.ListByDirectory(ctx, dir.SHA, false)
	require.NoError(t, err)
	require.Empty(t, listed)

	pending, err := files.ListByDirectory(ctx, dir.SHA, true)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	n, err := files.HardDeletePending(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestFileStoreDuplicateOccurrences(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	files := NewFileStore(db)
	dir := seedDirectory(t, db, "/pics/")

	now := time.Now().UTC()
	for _, spec := range []struct{ name, fileSHA, uniqueSHA string }{
		{"A.Jpg", "dup", "u1"},
		{"B.Jpg", "dup", "u2"},
		{"C.Jpg", "solo", "u3"},
	} {
		require.NoError(t, files.Insert(ctx, &File{
			Name: spec.name, HomeDirectory: dir.SHA,
			FileSHA: spec.fileSHA, UniqueSHA: spec.uniqueSHA,
			Ext: ".jpg", Size: 1, MTime: now,
		}))
	}

	occ, err := files.DuplicateOccurrences(ctx)
	require.NoError(t, err)
	require.Len(t, occ, 2)
	for _, o := range occ {
		require.Equal(t, "dup", o.FileSHA)
		require.Equal(t, "/pics/", o.FQPN)
	}

	n, err := files.CountLiveByFileSHA(ctx, "dup")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestThumbnailStoreSlotSemantics(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	thumbs := NewThumbnailStore(db)

	rec := &ThumbnailRecord{SHA: "sha-x", Small: []byte("small")}
	require.NoError(t, thumbs.Upsert(ctx, rec))

	// A later upsert with only the medium slot must not clobber small.
	require.NoError(t, thumbs.Upsert(ctx, &ThumbnailRecord{SHA: "sha-x", Medium: []byte("medium")}))

	got, err := thumbs.Get(ctx, "sha-x")
	require.NoError(t, err)
	require.Equal(t, []byte("small"), got.Slot(domain.ThumbnailSmall))
	require.Equal(t, []byte("medium"), got.Slot(domain.ThumbnailMedium))
	require.Nil(t, got.Slot(domain.ThumbnailLarge))
	require.False(t, got.Complete())

	require.NoError(t, thumbs.Clear(ctx, "sha-x"))
	got, err = thumbs.Get(ctx, "sha-x")
	require.NoError(t, err)
	require.Nil(t, got.Small)
	require.Nil(t, got.Medium)

	_, err = thumbs.Get(ctx, "absent")
	require.ErrorIs(t, err, ErrThumbnailNotFound)
}

func TestThumbnailStoreReapOrphans(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	thumbs := NewThumbnailStore(db)
	files := NewFileStore(db)
	dir := seedDirectory(t, db, "/pics/")

	require.NoError(t, files.Insert(ctx, &File{
		Name: "A.Jpg", HomeDirectory: dir.SHA,
		FileSHA: "live-sha", UniqueSHA: "u1", Ext: ".jpg", Size: 1, MTime: time.Now().UTC(),
	}))

	require.NoError(t, thumbs.Upsert(ctx, &ThumbnailRecord{SHA: "live-sha", Small: []byte("s")}))
	require.NoError(t, thumbs.Upsert(ctx, &ThumbnailRecord{SHA: "orphan-sha", Small: []byte("s")}))

	n, err := thumbs.ReapOrphans(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = thumbs.Get(ctx, "live-sha")
	require.NoError(t, err)
	_, err = thumbs.Get(ctx, "orphan-sha")
	require.ErrorIs(t, err, ErrThumbnailNotFound)
}

func TestCacheTrackingFlow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	tracking := NewCacheTrackingStore(db)
	dir := seedDirectory(t, db, "/pics/")

	// Never-scanned directories read as invalidated.
	ct, err := tracking.Get(ctx, dir.SHA)
	require.NoError(t, err)
	require.True(t, ct.Invalidated)
	require.Nil(t, ct.LastScan)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, tracking.MarkValid(ctx, dir.SHA, now))

	ct, err = tracking.Get(ctx, dir.SHA)
	require.NoError(t, err)
	require.False(t, ct.Invalidated)
	require.NotNil(t, ct.LastScan)

	// MarkInvalid is idempotent.
	for i := 0; i < 3; i++ {
		require.NoError(t, tracking.MarkInvalid(ctx, dir.SHA))
	}
	ct, err = tracking.Get(ctx, dir.SHA)
	require.NoError(t, err)
	require.True(t, ct.Invalidated)
}
