/* Copyright (c) 2025 JiraCounter authors
 * SPDX-License-Identifier: BSD-3-Clause */

package metrics

import (
    "sort"
    "strings"
    "time"

    "github.com/AndrzejSwistowski/jiracounter/internal/calendar"
    "github.com/AndrzejSwistowski/jiracounter/internal/domain"
)

// Aggregator folds an issue's status intervals and transitions into the
// reporting figures. It never reads the wall clock; every duration is
// measured against the supplied asOf, so recomputation from the same input
// gives an identical result.
type Aggregator struct {
    clock      *calendar.Clock
    categories map[string]string
    selected   string
}

func NewAggregator(clock *calendar.Clock, categories map[string]string, selectedForDevelopment string) *Aggregator {
    canon := make(map[string]string, len(categories))
    for k, v := range categories { canon[strings.ToLower(k)] = strings.ToLower(v) }
    return &Aggregator{
        clock:      clock,
        categories: canon,
        selected:   strings.ToLower(strings.TrimSpace(selectedForDevelopment)),
    }
}

const categoryCompleted = "completed"

// Aggregate computes the metrics for one issue. Open intervals and the
// development cycle are measured up to asOf; an issue that reached a
// completed category has its development cycle cut at the completion
// instant instead.
func (a *Aggregator) Aggregate(intervals []domain.StatusInterval, transitions []domain.Transition, createdAt, asOf time.Time) domain.Metrics {
    m := domain.Metrics{
        TotalWorkingMinutes: a.clock.WorkingMinutesBetween(createdAt, asOf),
        CategoryMinutes:     map[string]int{},
        TransitionCount:     len(transitions),
    }

    distinct := map[string]bool{}
    for _, iv := range intervals {
        distinct[iv.Status] = true
        end := asOf
        if iv.ExitedAt != nil { end = *iv.ExitedAt }
        cat, ok := a.categories[iv.Status]
        if !ok { continue }
        m.CategoryMinutes[cat] += a.clock.WorkingMinutesBetween(iv.EnteredAt, end)
    }
    m.DistinctStatuses = make([]string, 0, len(distinct))
    for s := range distinct { m.DistinctStatuses = append(m.DistinctStatuses, s) }
    sort.Strings(m.DistinctStatuses)

    if len(intervals) > 0 {
        last := intervals[len(intervals)-1]
        m.CurrentStatus = last.Status
        if len(intervals) > 1 { m.PreviousStatus = intervals[len(intervals)-2].Status }
    }

    for _, tr := range transitions {
        if tr.Backflow { m.BackflowCount++ }
    }

    // First departure from the status the issue was created in.
    if len(intervals) > 0 && intervals[0].ExitedAt != nil {
        exit := *intervals[0].ExitedAt
        m.TodoExitAt = &exit
    }

    // First arrival in a completed-category status.
    for _, tr := range transitions {
        if a.categories[tr.ToStatus] == categoryCompleted {
            done := tr.At
            m.CompletedAt = &done
            break
        }
    }

    if a.selected != "" {
        for _, tr := range transitions {
            if tr.ToStatus != a.selected { continue }
            started := tr.At
            m.DevStartedAt = &started
            end := asOf
            if m.CompletedAt != nil && m.CompletedAt.After(started) { end = *m.CompletedAt }
            cycle := a.clock.WorkingMinutesBetween(started, end)
            m.DevCycleMinutes = &cycle
            break
        }
    }

    return m
}
