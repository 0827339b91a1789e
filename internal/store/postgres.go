/* Copyright (c) 2025 JiraCounter authors
 * SPDX-License-Identifier: BSD-3-Clause */

package store

import (
    "context"
    "encoding/json"
    "errors"
    "time"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/rs/zerolog"

    "github.com/AndrzejSwistowski/jiracounter/internal/config"
    "github.com/AndrzejSwistowski/jiracounter/internal/domain"
)

type DB struct {
    Pool *pgxpool.Pool
    log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
    pool, err := pgxpool.New(ctx, cfg.DBDSN)
    if err != nil { log.Fatal().Err(err).Msg("db connect failed") }
    ctx2, cancel := context.WithTimeout(ctx, 10*time.Second); defer cancel()
    if err := pool.Ping(ctx2); err != nil { log.Fatal().Err(err).Msg("db ping failed") }
    return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

type Repository struct {
    db  *DB
    log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok)
    return ok, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
    if !ok && err == nil { return errors.New("advisory unlock returned false") }
    return err
}

// Exists reports whether a snapshot with this id and as-of instant is
// already stored. The pair is the duplicate-detection key for ingestion.
func (r *Repository) Exists(ctx context.Context, historyID string, asOf time.Time) (bool, error) {
    const q = `SELECT EXISTS(SELECT 1 FROM snapshots WHERE history_id=$1 AND as_of=$2)`
    var ok bool
    err := r.db.Pool.QueryRow(ctx, q, historyID, asOf).Scan(&ok)
    return ok, err
}

// BulkWrite upserts snapshots in one batch. With overwrite false an
// existing (history_id, as_of) row is left untouched; with overwrite true
// it is replaced. Returns the number of rows actually written: a conflict
// resolved by DO NOTHING affects zero rows and is not counted. Failures are
// collected per row so one bad snapshot does not sink the batch.
func (r *Repository) BulkWrite(ctx context.Context, snaps []domain.Snapshot, overwrite bool) (int, []domain.WriteError, error) {
    if len(snaps) == 0 { return 0, nil, nil }
    const insert = `INSERT INTO snapshots(history_id, issue_id, issue_key, as_of, created_at,
            total_working_minutes, category_minutes, backflow_count, transition_count,
            distinct_statuses, current_status, previous_status,
            todo_exit_at, dev_started_at, dev_cycle_minutes, transitions)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
        ON CONFLICT (history_id, as_of) DO NOTHING`
    const upsert = `INSERT INTO snapshots(history_id, issue_id, issue_key, as_of, created_at,
            total_working_minutes, category_minutes, backflow_count, transition_count,
            distinct_statuses, current_status, previous_status,
            todo_exit_at, dev_started_at, dev_cycle_minutes, transitions)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
        ON CONFLICT (history_id, as_of) DO UPDATE SET
            total_working_minutes=EXCLUDED.total_working_minutes,
            category_minutes=EXCLUDED.category_minutes,
            backflow_count=EXCLUDED.backflow_count,
            transition_count=EXCLUDED.transition_count,
            distinct_statuses=EXCLUDED.distinct_statuses,
            current_status=EXCLUDED.current_status,
            previous_status=EXCLUDED.previous_status,
            todo_exit_at=EXCLUDED.todo_exit_at,
            dev_started_at=EXCLUDED.dev_started_at,
            dev_cycle_minutes=EXCLUDED.dev_cycle_minutes,
            transitions=EXCLUDED.transitions`
    q := insert
    if overwrite { q = upsert }

    batch := &pgx.Batch{}
    for _, s := range snaps {
        cats, err := json.Marshal(s.CategoryMinutes)
        if err != nil { return 0, nil, err }
        trs, err := json.Marshal(s.Transitions)
        if err != nil { return 0, nil, err }
        statuses, err := json.Marshal(s.DistinctStatuses)
        if err != nil { return 0, nil, err }
        batch.Queue(q, s.HistoryID, s.IssueID, s.IssueKey, s.AsOf, s.CreatedAt,
            s.TotalWorkingMinutes, cats, s.BackflowCount, s.TransitionCount,
            statuses, s.CurrentStatus, s.PreviousStatus,
            s.TodoExitAt, s.DevStartedAt, s.DevCycleMinutes, trs)
    }
    br := r.db.Pool.SendBatch(ctx, batch)
    defer br.Close()
    inserted := 0
    var failed []domain.WriteError
    for _, s := range snaps {
        tag, err := br.Exec()
        if err != nil {
            failed = append(failed, domain.WriteError{HistoryID: s.HistoryID, IssueKey: s.IssueKey, Err: err})
            continue
        }
        if tag.RowsAffected() > 0 { inserted++ }
    }
    return inserted, failed, nil
}

// GetSyncCursor returns the updated-at watermark the last successful sync
// reached, or nil when no sync has completed yet.
func (r *Repository) GetSyncCursor(ctx context.Context, key string) (*time.Time, error) {
    const q = `SELECT cursor_at FROM sync_state WHERE key=$1`
    var at time.Time
    err := r.db.Pool.QueryRow(ctx, q, key).Scan(&at)
    if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
    if err != nil { return nil, err }
    return &at, nil
}

func (r *Repository) SetSyncCursor(ctx context.Context, key string, at time.Time) error {
    const q = `INSERT INTO sync_state(key, cursor_at, updated_at) VALUES($1,$2,now())
        ON CONFLICT (key) DO UPDATE SET cursor_at=EXCLUDED.cursor_at, updated_at=now()`
    _, err := r.db.Pool.Exec(ctx, q, key, at)
    return err
}

func (r *Repository) StartJobRun(ctx context.Context) (int64, error) {
    const q = `INSERT INTO job_runs(started_at, success) VALUES(now(), false) RETURNING id`
    var id int64
    if err := r.db.Pool.QueryRow(ctx, q).Scan(&id); err != nil { return 0, err }
    return id, nil
}

func (r *Repository) FinishJobRun(ctx context.Context, id int64, st domain.SyncStats, success bool, errStr string) error {
    const q = `UPDATE job_runs SET finished_at=now(), issues_scanned=$2, inserted=$3,
        skipped=$4, failed=$5, warnings=$6, success=$7, error=$8 WHERE id=$1`
    _, err := r.db.Pool.Exec(ctx, q, id, st.IssuesScanned, st.Inserted, st.Skipped, st.Failed, st.Warnings, success, errStr)
    return err
}

type LastRun struct {
    StartedAt     time.Time  `json:"started_at"`
    FinishedAt    *time.Time `json:"finished_at"`
    IssuesScanned int        `json:"issues_scanned"`
    Inserted      int        `json:"inserted"`
    Skipped       int        `json:"skipped"`
    Failed        int        `json:"failed"`
    Warnings      int        `json:"warnings"`
    Success       bool       `json:"success"`
    Error         string     `json:"error"`
}

func (r *Repository) GetLastRun(ctx context.Context) (*LastRun, error) {
    const q = `SELECT started_at, finished_at,
        coalesce(issues_scanned,0), coalesce(inserted,0), coalesce(skipped,0),
        coalesce(failed,0), coalesce(warnings,0), coalesce(success,false), coalesce(error,'')
        FROM job_runs ORDER BY id DESC LIMIT 1`
    row := r.db.Pool.QueryRow(ctx, q)
    lr := &LastRun{}
    if err := row.Scan(&lr.StartedAt, &lr.FinishedAt, &lr.IssuesScanned, &lr.Inserted, &lr.Skipped,
        &lr.Failed, &lr.Warnings, &lr.Success, &lr.Error); err != nil {
        return nil, err
    }
    return lr, nil
}

// ListSnapshots returns the newest snapshot rows for an issue key, most
// recent first.
func (r *Repository) ListSnapshots(ctx context.Context, issueKey string, limit int) ([]domain.Snapshot, error) {
    if limit <= 0 { limit = 20 }
    const q = `SELECT history_id, issue_id, issue_key, as_of, created_at,
            total_working_minutes, category_minutes, backflow_count, transition_count,
            distinct_statuses, current_status, previous_status,
            todo_exit_at, dev_started_at, dev_cycle_minutes, transitions
        FROM snapshots WHERE issue_key=$1 ORDER BY as_of DESC LIMIT $2`
    rows, err := r.db.Pool.Query(ctx, q, issueKey, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.Snapshot
    for rows.Next() {
        var s domain.Snapshot
        var cats, statuses, trs []byte
        if err := rows.Scan(&s.HistoryID, &s.IssueID, &s.IssueKey, &s.AsOf, &s.CreatedAt,
            &s.TotalWorkingMinutes, &cats, &s.BackflowCount, &s.TransitionCount,
            &statuses, &s.CurrentStatus, &s.PreviousStatus,
            &s.TodoExitAt, &s.DevStartedAt, &s.DevCycleMinutes, &trs); err != nil {
            return nil, err
        }
        if err := json.Unmarshal(cats, &s.CategoryMinutes); err != nil { return nil, err }
        if err := json.Unmarshal(statuses, &s.DistinctStatuses); err != nil { return nil, err }
        if len(trs) > 0 {
            if err := json.Unmarshal(trs, &s.Transitions); err != nil { return nil, err }
        }
        out = append(out, s)
    }
    return out, rows.Err()
}
