// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package invalidator

import (
	"fmt"
	"time"
)

// restartSchedule decides when the watcher is torn down and rebuilt. It is
// either a fixed interval ("1h") or a list of wall-clock HH:MM times.
type restartSchedule struct {
	interval time.Duration
	times    []clockTime
}

type clockTime struct {
	hour, minute int
}

// parseRestartSchedule accepts a single Go duration or one or more HH:MM
// strings. An empty input means the default hourly restart.
func parseRestartSchedule(entries []string) (restartSchedule, error) {
	if len(entries) == 0 {
		return restartSchedule{interval: time.Hour}, nil
	}

	if len(entries) == 1 {
		if d, err := time.ParseDuration(entries[0]); err == nil {
			if d <= 0 {
				return restartSchedule{}, fmt.Errorf("restart interval must be positive: %s", entries[0])
			}
			return restartSchedule{interval: d}, nil
		}
	}

	times := make([]clockTime, 0, len(entries))
	for _, e := range entries {
		var ct clockTime
		if _, err := fmt.Sscanf(e, "%d:%d", &ct.hour, &ct.minute); err != nil {
			return restartSchedule{}, fmt.Errorf("invalid restart schedule entry %q: want HH:MM or a duration", e)
		}
		if ct.hour < 0 || ct.hour > 23 || ct.minute < 0 || ct.minute > 59 {
			return restartSchedule{}, fmt.Errorf("invalid restart schedule time %q", e)
		}
		times = append(times, ct)
	}

	return restartSchedule{times: times}, nil
}

// next returns the wait until the schedule's next firing after now.
func (s restartSchedule) next(now time.Time) time.Duration {
	if s.interval > 0 {
		return s.interval
	}

	best := time.Duration(-1)
	for _, ct := range s.times {
		at := time.Date(now.Year(), now.Month(), now.Day(), ct.hour, ct.minute, 0, 0, now.Location())
		if !at.After(now) {
			at = at.Add(24 * time.Hour)
		}
		if d := at.Sub(now); best < 0 || d < best {
			best = d
		}
	}
	if best < 0 {
		return time.Hour
	}
	return best
}
