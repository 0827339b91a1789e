/* Copyright (c) 2025 JiraCounter authors
 * SPDX-License-Identifier: BSD-3-Clause */

package timeline

import (
    "strings"
    "time"

    "github.com/AndrzejSwistowski/jiracounter/internal/calendar"
    "github.com/AndrzejSwistowski/jiracounter/internal/domain"
)

// Builder replays normalized status changes into the intervals an issue
// spent in each status, plus the transition list between them. Direction of
// a transition is judged against the configured workflow order table; a
// status missing from the table ranks 0 and is never treated as backflow.
type Builder struct {
    clock *calendar.Clock
    order map[string]int
}

func NewBuilder(clock *calendar.Clock, order map[string]int) *Builder {
    canon := make(map[string]int, len(order))
    for k, v := range order { canon[strings.ToLower(k)] = v }
    return &Builder{clock: clock, order: canon}
}

// Build replays changes in order, starting from the issue creation instant.
// The initial status is the first change's source value, falling back to its
// target value; the caller-supplied current status is used only when there
// are no changes. The final interval stays open (nil exit).
func (b *Builder) Build(changes []domain.StatusChange, createdAt time.Time, currentStatus string) ([]domain.StatusInterval, []domain.Transition) {
    if len(changes) == 0 {
        status := strings.ToLower(strings.TrimSpace(currentStatus))
        if status == "" { return nil, nil }
        return []domain.StatusInterval{{
            Status:    status,
            Display:   strings.TrimSpace(currentStatus),
            EnteredAt: createdAt,
        }}, nil
    }

    first := changes[0]
    status, display := first.From, first.FromDisplay
    if status == "" {
        // Feed never recorded an origin; the earliest target is the status
        // the issue was born in. The current status is only trusted when
        // there are no changes at all.
        status, display = first.To, first.ToDisplay
    }

    intervals := make([]domain.StatusInterval, 0, len(changes)+1)
    transitions := make([]domain.Transition, 0, len(changes))
    enteredAt := createdAt

    for _, ch := range changes {
        if ch.To == status {
            // Self-transition, the issue never left the status.
            continue
        }
        exit := ch.At
        intervals = append(intervals, domain.StatusInterval{
            Status:    status,
            Display:   display,
            EnteredAt: enteredAt,
            ExitedAt:  &exit,
        })
        fromOrder, toOrder := b.order[status], b.order[ch.To]
        transitions = append(transitions, domain.Transition{
            FromStatus:        status,
            ToStatus:          ch.To,
            FromDisplay:       display,
            ToDisplay:         ch.ToDisplay,
            At:                ch.At,
            MinutesInPrevious: b.clock.WorkingMinutesBetween(enteredAt, ch.At),
            Forward:           fromOrder > 0 && toOrder > 0 && toOrder > fromOrder,
            Backflow:          fromOrder > 0 && toOrder > 0 && toOrder < fromOrder,
        })
        status, display = ch.To, ch.ToDisplay
        enteredAt = ch.At
    }

    intervals = append(intervals, domain.StatusInterval{
        Status:    status,
        Display:   display,
        EnteredAt: enteredAt,
    })
    return intervals, transitions
}
