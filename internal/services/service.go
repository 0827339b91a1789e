/* Copyright (c) 2025 JiraCounter authors
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "errors"
    "sync"
    "time"

    "github.com/rs/zerolog"
    "golang.org/x/sync/errgroup"

    "github.com/AndrzejSwistowski/jiracounter/internal/calendar"
    "github.com/AndrzejSwistowski/jiracounter/internal/config"
    "github.com/AndrzejSwistowski/jiracounter/internal/domain"
    "github.com/AndrzejSwistowski/jiracounter/internal/metrics"
    "github.com/AndrzejSwistowski/jiracounter/internal/store"
    "github.com/AndrzejSwistowski/jiracounter/internal/timeline"
)

type JiraClient interface {
    SearchUpdated(ctx context.Context, since *time.Time, startAt, max int) ([]domain.Issue, error)
    Issue(ctx context.Context, key string) (domain.Issue, error)
    ChangeEvents(ctx context.Context, key string) ([]domain.RawChangeEvent, error)
}

// Store is the persistence surface the sync service drives. It is the
// document store plus run bookkeeping; *store.Repository implements it.
type Store interface {
    SnapshotStore
    GetSyncCursor(ctx context.Context, key string) (*time.Time, error)
    SetSyncCursor(ctx context.Context, key string, at time.Time) error
    StartJobRun(ctx context.Context) (int64, error)
    FinishJobRun(ctx context.Context, id int64, st domain.SyncStats, success bool, errStr string) error
    GetLastRun(ctx context.Context) (*store.LastRun, error)
    ListSnapshots(ctx context.Context, issueKey string, limit int) ([]domain.Snapshot, error)
}

const syncCursorKey = "issues"

type Service struct {
    cfg        config.Config
    log        zerolog.Logger
    repo       Store
    jira       JiraClient
    normalizer *timeline.Normalizer
    builder    *timeline.Builder
    aggregator *metrics.Aggregator
    writer     *SnapshotWriter

    mu      sync.Mutex
    running bool
}

func New(cfg config.Config, log zerolog.Logger, repo Store, jira JiraClient) *Service {
    clock := calendar.NewClock(cfg.Workflow.Calendar)
    return &Service{
        cfg:        cfg,
        log:        log,
        repo:       repo,
        jira:       jira,
        normalizer: timeline.NewNormalizer(log),
        builder:    timeline.NewBuilder(clock, cfg.Workflow.StatusOrder),
        aggregator: metrics.NewAggregator(clock, cfg.Workflow.Categories, cfg.Workflow.SelectedForDevelopment),
        writer:     NewSnapshotWriter(repo, log),
    }
}

var ErrSyncRunning = errors.New("sync already running")

const pageSize = 50

// RunSync pulls every issue updated since the stored cursor, recomputes its
// snapshot, and writes the batch. The cursor only advances after the run
// finishes cleanly, so a failed run is retried from the same watermark.
func (s *Service) RunSync(ctx context.Context, forceOverride bool) (domain.SyncStats, error) {
    s.mu.Lock()
    if s.running { s.mu.Unlock(); return domain.SyncStats{}, ErrSyncRunning }
    s.running = true
    s.mu.Unlock()
    defer func() { s.mu.Lock(); s.running = false; s.mu.Unlock() }()

    var stats domain.SyncStats
    jobID, err := s.repo.StartJobRun(ctx)
    if err != nil { return stats, err }

    cursor, err := s.repo.GetSyncCursor(ctx, syncCursorKey)
    if err != nil {
        _ = s.repo.FinishJobRun(ctx, jobID, stats, false, err.Error())
        return stats, err
    }

    // maxUpdated is the newest updated instant among fully processed
    // issues; minFailed pins the cursor so a failed issue is re-fetched on
    // the next run (the search window is inclusive).
    var maxUpdated, minFailed time.Time
    var runErr error
    startAt := 0
    for {
        issues, err := s.jira.SearchUpdated(ctx, cursor, startAt, pageSize)
        if err != nil { runErr = err; break }
        if len(issues) == 0 { break }

        snaps := make([]domain.Snapshot, 0, len(issues))
        var pageMu sync.Mutex
        g, gctx := errgroup.WithContext(ctx)
        g.SetLimit(s.workers())
        for _, issue := range issues {
            issue := issue
            g.Go(func() error {
                snap, warnings, err := s.computeSnapshot(gctx, issue)
                pageMu.Lock()
                defer pageMu.Unlock()
                stats.IssuesScanned++
                stats.Warnings += warnings
                if err != nil {
                    stats.Failed++
                    if minFailed.IsZero() || issue.UpdatedAt.Before(minFailed) { minFailed = issue.UpdatedAt }
                    s.log.Error().Err(err).Str("issue", issue.Key).Msg("snapshot computation failed")
                    return nil
                }
                snaps = append(snaps, snap)
                return nil
            })
        }
        if err := g.Wait(); err != nil { runErr = err; break }

        out := s.writer.Write(ctx, snaps, forceOverride)
        stats.Inserted += out.Inserted
        stats.Skipped += out.Skipped
        stats.Failed += out.Failed
        writeFailed := make(map[string]bool, len(out.Errors))
        for _, we := range out.Errors {
            writeFailed[we.HistoryID] = true
            s.log.Error().Err(we.Err).Str("issue", we.IssueKey).Str("history_id", we.HistoryID).Msg("snapshot write failed")
        }
        // Only issues whose snapshot made it to the store (written or
        // already present) move the watermark. AsOf is the issue's source
        // updated instant.
        for _, snap := range snaps {
            if writeFailed[snap.HistoryID] {
                if minFailed.IsZero() || snap.AsOf.Before(minFailed) { minFailed = snap.AsOf }
                continue
            }
            if snap.AsOf.After(maxUpdated) { maxUpdated = snap.AsOf }
        }

        if len(issues) < pageSize { break }
        startAt += pageSize
    }

    if runErr != nil {
        _ = s.repo.FinishJobRun(ctx, jobID, stats, false, runErr.Error())
        return stats, runErr
    }
    if !minFailed.IsZero() && (maxUpdated.IsZero() || minFailed.Before(maxUpdated)) {
        maxUpdated = minFailed
    }
    if !maxUpdated.IsZero() {
        if err := s.repo.SetSyncCursor(ctx, syncCursorKey, maxUpdated); err != nil {
            _ = s.repo.FinishJobRun(ctx, jobID, stats, false, err.Error())
            return stats, err
        }
    }
    err = s.repo.FinishJobRun(ctx, jobID, stats, true, "")
    s.log.Info().
        Int("scanned", stats.IssuesScanned).
        Int("inserted", stats.Inserted).
        Int("skipped", stats.Skipped).
        Int("failed", stats.Failed).
        Msg("sync finished")
    return stats, err
}

// ResyncIssue recomputes and rewrites the snapshot for one issue,
// replacing whatever is stored for the same (history_id, as_of).
func (s *Service) ResyncIssue(ctx context.Context, key string) (domain.WriteOutcome, error) {
    issue, err := s.jira.Issue(ctx, key)
    if err != nil { return domain.WriteOutcome{}, err }
    snap, _, err := s.computeSnapshot(ctx, issue)
    if err != nil { return domain.WriteOutcome{}, err }
    return s.writer.Write(ctx, []domain.Snapshot{snap}, true), nil
}

func (s *Service) GetLastRun(ctx context.Context) (*store.LastRun, error) {
    return s.repo.GetLastRun(ctx)
}

func (s *Service) IssueSnapshots(ctx context.Context, key string, limit int) ([]domain.Snapshot, error) {
    return s.repo.ListSnapshots(ctx, key, limit)
}

// computeSnapshot runs the full pipeline for one issue: fetch changelog,
// normalize, replay the timeline, aggregate. The snapshot is stamped with
// the issue's source updated instant, never the wall clock, so recomputing
// an unchanged issue yields an identical record.
func (s *Service) computeSnapshot(ctx context.Context, issue domain.Issue) (domain.Snapshot, int, error) {
    events, err := s.jira.ChangeEvents(ctx, issue.Key)
    if err != nil { return domain.Snapshot{}, 0, err }

    changes, warnings := s.normalizer.Normalize(events)
    intervals, transitions := s.builder.Build(changes, issue.CreatedAt, issue.Status)
    asOf := issue.UpdatedAt
    m := s.aggregator.Aggregate(intervals, transitions, issue.CreatedAt, asOf)

    trigger := issue.CreatedAt
    if len(changes) > 0 { trigger = changes[len(changes)-1].At }

    return domain.Snapshot{
        HistoryID:           HistoryID(issue.ID, trigger),
        IssueID:             issue.ID,
        IssueKey:            issue.Key,
        AsOf:                asOf,
        CreatedAt:           issue.CreatedAt,
        TotalWorkingMinutes: m.TotalWorkingMinutes,
        CategoryMinutes:     m.CategoryMinutes,
        BackflowCount:       m.BackflowCount,
        TransitionCount:     m.TransitionCount,
        DistinctStatuses:    m.DistinctStatuses,
        CurrentStatus:       m.CurrentStatus,
        PreviousStatus:      m.PreviousStatus,
        TodoExitAt:          m.TodoExitAt,
        DevStartedAt:        m.DevStartedAt,
        DevCycleMinutes:     m.DevCycleMinutes,
        Transitions:         transitions,
    }, warnings, nil
}

func (s *Service) workers() int {
    if s.cfg.Workers <= 0 { return 6 }
    return s.cfg.Workers
}
