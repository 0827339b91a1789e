/* Copyright (c) 2025 JiraCounter authors
 * SPDX-License-Identifier: BSD-3-Clause */

package timeline

import (
    "sort"
    "strings"
    "time"

    "github.com/rs/zerolog"

    "github.com/AndrzejSwistowski/jiracounter/internal/domain"
)

// Normalizer turns raw changelog entries into a clean, ordered sequence of
// status changes. Raw feeds repeat entries across pagination and mix field
// casing, so everything funnels through here before the timeline is built.
type Normalizer struct {
    log zerolog.Logger
}

func NewNormalizer(log zerolog.Logger) *Normalizer {
    return &Normalizer{log: log}
}

// Normalize keeps only status-field events, drops duplicates and entries
// with an empty target value, and returns the survivors ordered by change
// time. Ordering is stable, so events sharing a timestamp keep their source
// order. Values are lowercased for matching while the original display
// spelling is preserved.
func (n *Normalizer) Normalize(events []domain.RawChangeEvent) ([]domain.StatusChange, int) {
    type dedupeKey struct {
        field string
        at    time.Time
        to    string
    }
    seen := make(map[dedupeKey]bool, len(events))
    changes := make([]domain.StatusChange, 0, len(events))
    warnings := 0

    for _, ev := range events {
        if !strings.EqualFold(ev.Field, "status") { continue }
        to := strings.TrimSpace(ev.ToValue)
        if to == "" {
            warnings++
            n.log.Warn().
                Str("issue", ev.IssueKey).
                Time("changed_at", ev.ChangedAt).
                Str("from", ev.FromValue).
                Msg("status change without target value dropped")
            continue
        }
        key := dedupeKey{field: "status", at: ev.ChangedAt, to: strings.ToLower(to)}
        if seen[key] { continue }
        seen[key] = true

        from := strings.TrimSpace(ev.FromValue)
        changes = append(changes, domain.StatusChange{
            From:        strings.ToLower(from),
            FromDisplay: from,
            To:          strings.ToLower(to),
            ToDisplay:   to,
            At:          ev.ChangedAt,
            Author:      ev.Author,
        })
    }

    sort.SliceStable(changes, func(i, j int) bool { return changes[i].At.Before(changes[j].At) })
    return changes, warnings
}
