// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package index

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/autobrr/lumen/internal/models"
	"github.com/autobrr/lumen/pkg/natcmp"
)

// SortOrder selects the listing order. Values are wire-stable: they appear
// in URLs as ?sort=N.
type SortOrder int

const (
	// SortNaturalName groups links before plain files, natural name within
	// each group. Directories always precede files in the composed page.
	SortNaturalName SortOrder = 0
	// SortLastModified groups like SortNaturalName, newest first within each
	// group, name as tiebreaker.
	SortLastModified SortOrder = 1
	// SortNameOnly is pure natural-name order with no kind grouping.
	SortNameOnly SortOrder = 2
)

// ParseSortOrder validates a sort code from a query parameter.
func ParseSortOrder(code int) (SortOrder, error) {
	switch SortOrder(code) {
	case SortNaturalName, SortLastModified, SortNameOnly:
		return SortOrder(code), nil
	default:
		return 0, fmt.Errorf("unknown sort order %d", code)
	}
}

const linkExt = ".link"

func fileGroupRank(f models.File) int {
	if f.Ext == linkExt {
		return 0
	}
	return 1
}

// SortFiles orders a file slice in place. All sorts are stable so
// pagination stays coherent across requests.
func SortFiles(files []models.File, order SortOrder) {
	switch order {
	case SortLastModified:
		sort.SliceStable(files, func(i, j int) bool {
			if ri, rj := fileGroupRank(files[i]), fileGroupRank(files[j]); ri != rj {
				return ri < rj
			}
			if !files[i].MTime.Equal(files[j].MTime) {
				return files[i].MTime.After(files[j].MTime)
			}
			return natcmp.Less(files[i].Name, files[j].Name)
		})
	case SortNameOnly:
		sort.SliceStable(files, func(i, j int) bool {
			return natcmp.Less(files[i].Name, files[j].Name)
		})
	default: // SortNaturalName
		sort.SliceStable(files, func(i, j int) bool {
			if ri, rj := fileGroupRank(files[i]), fileGroupRank(files[j]); ri != rj {
				return ri < rj
			}
			return natcmp.Less(files[i].Name, files[j].Name)
		})
	}
}

// DirectoryDisplayName returns the base name of a directory's canonical
// path, suitable for natural comparison and breadcrumb labels.
func DirectoryDisplayName(d models.Directory) string {
	trimmed := strings.TrimRight(d.FQPN, string(filepath.Separator))
	return filepath.Base(trimmed)
}

// SortDirectories orders a directory slice in place. Directories have no
// tracked content mtime, so SortLastModified falls back to the last sync
// time, newest first.
func SortDirectories(dirs []models.Directory, order SortOrder) {
	switch order {
	case SortLastModified:
		sort.SliceStable(dirs, func(i, j int) bool {
			ti, tj := dirs[i].LastSyncTime, dirs[j].LastSyncTime
			switch {
			case ti != nil && tj != nil && !ti.Equal(*tj):
				return ti.After(*tj)
			case ti != nil && tj == nil:
				return true
			case ti == nil && tj != nil:
				return false
			}
			return natcmp.Less(DirectoryDisplayName(dirs[i]), DirectoryDisplayName(dirs[j]))
		})
	default:
		sort.SliceStable(dirs, func(i, j int) bool {
			return natcmp.Less(DirectoryDisplayName(dirs[i]), DirectoryDisplayName(dirs[j]))
		})
	}
}
