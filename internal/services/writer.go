/* Copyright (c) 2025 JiraCounter authors
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "fmt"
    "time"

    "github.com/rs/zerolog"

    "github.com/AndrzejSwistowski/jiracounter/internal/domain"
)

// SnapshotStore is the slice of the document store the writer needs.
// BulkWrite reports how many rows it actually wrote; a duplicate resolved
// inside the store counts as zero.
type SnapshotStore interface {
    Exists(ctx context.Context, historyID string, asOf time.Time) (bool, error)
    BulkWrite(ctx context.Context, snaps []domain.Snapshot, overwrite bool) (int, []domain.WriteError, error)
}

// SnapshotWriter persists computed snapshots, skipping any whose
// (history_id, as_of) pair is already stored unless override is requested.
type SnapshotWriter struct {
    store SnapshotStore
    log   zerolog.Logger
}

func NewSnapshotWriter(store SnapshotStore, log zerolog.Logger) *SnapshotWriter {
    return &SnapshotWriter{store: store, log: log}
}

// HistoryID derives the stable snapshot identifier from the issue id and
// the instant of the triggering event. Replaying the same events always
// produces the same id, which is what makes duplicate detection work.
func HistoryID(issueID string, at time.Time) string {
    return fmt.Sprintf("%s-%d", issueID, at.UnixMilli())
}

// Write persists a batch. Duplicates are skipped unless forceOverride is
// set, in which case existing rows are replaced. One failing snapshot does
// not abort the rest; failures are collected in the outcome.
func (w *SnapshotWriter) Write(ctx context.Context, snaps []domain.Snapshot, forceOverride bool) domain.WriteOutcome {
    var out domain.WriteOutcome
    pending := make([]domain.Snapshot, 0, len(snaps))
    for _, s := range snaps {
        if !forceOverride {
            exists, err := w.store.Exists(ctx, s.HistoryID, s.AsOf)
            if err != nil {
                out.Failed++
                out.Errors = append(out.Errors, domain.WriteError{HistoryID: s.HistoryID, IssueKey: s.IssueKey, Err: err})
                continue
            }
            if exists {
                out.Skipped++
                w.log.Debug().Str("issue", s.IssueKey).Str("history_id", s.HistoryID).Msg("snapshot already stored, skipping")
                continue
            }
        }
        pending = append(pending, s)
    }
    if len(pending) == 0 { return out }

    inserted, failed, err := w.store.BulkWrite(ctx, pending, forceOverride)
    if err != nil {
        out.Failed += len(pending)
        for _, s := range pending {
            out.Errors = append(out.Errors, domain.WriteError{HistoryID: s.HistoryID, IssueKey: s.IssueKey, Err: err})
        }
        return out
    }
    out.Failed += len(failed)
    out.Errors = append(out.Errors, failed...)
    out.Inserted = inserted
    // A row that appeared between the Exists check and the insert resolves
    // as a zero-row conflict inside the store; it was not written by us.
    out.Skipped += len(pending) - inserted - len(failed)
    return out
}
