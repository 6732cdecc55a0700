// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package identity canonicalizes paths and computes the SHA-256 identities
// used everywhere in the index: directory SHAs, file content SHAs, and the
// unique SHA that distinguishes identical content at different locations.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/golang/groupcache/lru"
)

// hashChunkSize is the read size for streaming file hashing.
const hashChunkSize = 4096

// defaultCacheEntries bounds the canonicalization memo.
const defaultCacheEntries = 5000

// TitleCase normalizes a filename the way it is stored and compared: every
// letter that follows a non-letter is upper-cased and every other letter is
// lowered, so "a.jpg" becomes "A.Jpg" and "my holiday.png" becomes
// "My Holiday.Png". All filesystem comparisons still use case-insensitive
// equality, so the normalization never changes identity, only display.
func TitleCase(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	prevLetter := false
	for _, r := range name {
		if !unicode.IsLetter(r) {
			b.WriteRune(r)
			prevLetter = false
			continue
		}
		if prevLetter {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(unicode.ToUpper(r))
		}
		prevLetter = true
	}

	return b.String()
}

// Canonicalizer resolves and caches canonical directory paths and their
// SHAs. Canonicalization is pure per path, so results are memoized in a
// bounded LRU. File hashing is never cached here; the index caches it
// through File rows.
type Canonicalizer struct {
	mu    sync.Mutex
	cache *lru.Cache
}

type canonEntry struct {
	fqpn string
	sha  string
}

// NewCanonicalizer creates a Canonicalizer with the default cache bound.
func NewCanonicalizer() *Canonicalizer {
	return NewCanonicalizerSize(defaultCacheEntries)
}

// NewCanonicalizerSize creates a Canonicalizer with an explicit cache bound.
func NewCanonicalizerSize(entries int) *Canonicalizer {
	return &Canonicalizer{cache: lru.New(entries)}
}

// CanonicalDir returns the canonical form of a directory path: symlinks and
// relative components resolved, on-disk case preserved, exactly one trailing
// separator. The directory SHA is the SHA-256 of the lower-cased canonical
// form, so case-variant spellings share an identity while the returned path
// stays usable for I/O on case-sensitive filesystems.
func (c *Canonicalizer) CanonicalDir(path string) (fqpn string, sha string, err error) {
	c.mu.Lock()
	if v, ok := c.cache.Get(path); ok {
		entry := v.(canonEntry)
		c.mu.Unlock()
		return entry.fqpn, entry.sha, nil
	}
	c.mu.Unlock()

	fqpn, sha, err = canonicalize(path)
	if err != nil {
		return "", "", err
	}

	c.mu.Lock()
	c.cache.Add(path, canonEntry{fqpn: fqpn, sha: sha})
	// The canonical form maps to itself; cache it too so lookups by either
	// spelling hit.
	if fqpn != path {
		c.cache.Add(fqpn, canonEntry{fqpn: fqpn, sha: sha})
	}
	c.mu.Unlock()

	return fqpn, sha, nil
}

func canonicalize(path string) (string, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", fmt.Errorf("resolve %s: %w", path, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// The path may not exist yet (or anymore); canonicalize the cleaned
		// absolute form so lookups for vanished directories still resolve to
		// a stable identity.
		if os.IsNotExist(err) {
			resolved = filepath.Clean(abs)
		} else {
			return "", "", fmt.Errorf("resolve symlinks %s: %w", abs, err)
		}
	}

	fqpn := resolved
	sep := string(filepath.Separator)
	if !strings.HasSuffix(fqpn, sep) {
		fqpn += sep
	}

	return fqpn, HashString(strings.ToLower(fqpn)), nil
}

// HashString returns the hex SHA-256 of a string.
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// FileSHAs streams the file at path through SHA-256 in 4 KiB chunks and
// returns both identities:
//
//	fileSHA   = SHA256(content)
//	uniqueSHA = SHA256(content || titledFullPath)
//
// The unique SHA continues the same hash state with the title-cased full
// path appended after the content bytes.
func FileSHAs(path string, titledFullPath string) (fileSHA string, uniqueSHA string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", "", fmt.Errorf("hash %s: %w", path, err)
	}

	// Sum does not mutate the hash state, so the content digest can be
	// snapshotted before the path bytes are appended.
	fileSHA = hex.EncodeToString(h.Sum(nil))

	h.Write([]byte(titledFullPath))
	uniqueSHA = hex.EncodeToString(h.Sum(nil))

	return fileSHA, uniqueSHA, nil
}

// ContentSHAs computes the same pair over in-memory bytes. Used by tests and
// by callers that already hold the content.
func ContentSHAs(content []byte, titledFullPath string) (fileSHA string, uniqueSHA string) {
	h := sha256.New()
	h.Write(content)
	fileSHA = hex.EncodeToString(h.Sum(nil))

	h.Write([]byte(titledFullPath))
	uniqueSHA = hex.EncodeToString(h.Sum(nil))
	return fileSHA, uniqueSHA
}

// CombinedSHA summarizes a directory's contents: the SHA-256 of all
// contained file content SHAs concatenated in sorted order. An empty
// directory hashes the empty string.
func CombinedSHA(fileSHAs []string) string {
	sorted := append([]string(nil), fileSHAs...)
	sort.Strings(sorted)

	h := sha256.New()
	for _, s := range sorted {
		h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))
}
