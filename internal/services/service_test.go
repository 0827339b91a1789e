package services

import (
    "context"
    "testing"
    "time"

    "github.com/rs/zerolog"

    "github.com/AndrzejSwistowski/jiracounter/internal/config"
    "github.com/AndrzejSwistowski/jiracounter/internal/domain"
    "github.com/AndrzejSwistowski/jiracounter/internal/store"
)

type fakeStore struct {
    *fakeSnapshotStore
    cursor   *time.Time
    runs     []domain.SyncStats
    finished bool
    success  bool
}

func newFakeStore() *fakeStore {
    return &fakeStore{fakeSnapshotStore: newFakeSnapshotStore()}
}

func (f *fakeStore) GetSyncCursor(context.Context, string) (*time.Time, error) { return f.cursor, nil }

func (f *fakeStore) SetSyncCursor(_ context.Context, _ string, at time.Time) error {
    f.cursor = &at
    return nil
}

func (f *fakeStore) StartJobRun(context.Context) (int64, error) { return 1, nil }

func (f *fakeStore) FinishJobRun(_ context.Context, _ int64, st domain.SyncStats, success bool, _ string) error {
    f.runs = append(f.runs, st)
    f.finished = true
    f.success = success
    return nil
}

func (f *fakeStore) GetLastRun(context.Context) (*store.LastRun, error) { return nil, nil }

func (f *fakeStore) ListSnapshots(context.Context, string, int) ([]domain.Snapshot, error) {
    return nil, nil
}

type fakeJira struct {
    issues map[string]domain.Issue
    events map[string][]domain.RawChangeEvent
}

func (f *fakeJira) SearchUpdated(_ context.Context, _ *time.Time, startAt, _ int) ([]domain.Issue, error) {
    if startAt > 0 { return nil, nil }
    out := make([]domain.Issue, 0, len(f.issues))
    for _, k := range []string{"PROJ-1", "PROJ-2"} {
        if i, ok := f.issues[k]; ok { out = append(out, i) }
    }
    return out, nil
}

func (f *fakeJira) Issue(_ context.Context, key string) (domain.Issue, error) {
    return f.issues[key], nil
}

func (f *fakeJira) ChangeEvents(_ context.Context, key string) ([]domain.RawChangeEvent, error) {
    return f.events[key], nil
}

func utc(t *testing.T, value string) time.Time {
    t.Helper()
    v, err := time.Parse("2006-01-02 15:04:05", value)
    if err != nil { t.Fatalf("bad time %q: %v", value, err) }
    return v
}

func testService(t *testing.T, st *fakeStore, jira *fakeJira) *Service {
    t.Helper()
    cfg := config.Config{Workers: 2, Workflow: config.DefaultWorkflow()}
    return New(cfg, zerolog.Nop(), st, jira)
}

func fixtureJira(t *testing.T) *fakeJira {
    t.Helper()
    created := utc(t, "2025-05-26 09:00:00")
    return &fakeJira{
        issues: map[string]domain.Issue{
            "PROJ-1": {ID: "10001", Key: "PROJ-1", Status: "In Progress", CreatedAt: created, UpdatedAt: utc(t, "2025-05-27 12:00:00")},
            "PROJ-2": {ID: "10002", Key: "PROJ-2", Status: "Open", CreatedAt: created, UpdatedAt: utc(t, "2025-05-27 10:00:00")},
        },
        events: map[string][]domain.RawChangeEvent{
            "PROJ-1": {
                {IssueID: "10001", IssueKey: "PROJ-1", Field: "status", FromValue: "Backlog", ToValue: "In Progress", ChangedAt: utc(t, "2025-05-27 09:00:00")},
            },
            "PROJ-2": nil,
        },
    }
}

func TestRunSyncWritesSnapshots(t *testing.T) {
    st := newFakeStore()
    svc := testService(t, st, fixtureJira(t))
    stats, err := svc.RunSync(context.Background(), false)
    if err != nil { t.Fatalf("sync failed: %v", err) }
    if stats.IssuesScanned != 2 { t.Errorf("scanned = %d, want 2", stats.IssuesScanned) }
    if stats.Inserted != 2 || stats.Failed != 0 {
        t.Errorf("stats wrong: %+v", stats)
    }
    if len(st.rows) != 2 { t.Fatalf("expected 2 stored snapshots, got %d", len(st.rows)) }
    if !st.finished || !st.success { t.Errorf("job run not finished successfully") }
}

func TestRunSyncSnapshotContent(t *testing.T) {
    st := newFakeStore()
    svc := testService(t, st, fixtureJira(t))
    if _, err := svc.RunSync(context.Background(), false); err != nil { t.Fatal(err) }
    var got domain.Snapshot
    for _, s := range st.rows {
        if s.IssueKey == "PROJ-1" { got = s }
    }
    if got.HistoryID == "" { t.Fatalf("PROJ-1 snapshot missing") }
    // Triggering event is the status change at 09:00 on the 27th.
    want := HistoryID("10001", utc(t, "2025-05-27 09:00:00"))
    if got.HistoryID != want { t.Errorf("history id = %q, want %q", got.HistoryID, want) }
    if !got.AsOf.Equal(utc(t, "2025-05-27 12:00:00")) { t.Errorf("as_of = %v", got.AsOf) }
    if got.CurrentStatus != "in progress" || got.PreviousStatus != "backlog" {
        t.Errorf("status pair %q/%q", got.CurrentStatus, got.PreviousStatus)
    }
    if got.TransitionCount != 1 { t.Errorf("transition count = %d", got.TransitionCount) }
    // Monday 09:00 through Tuesday 12:00 is one working day plus 3 hours.
    if got.TotalWorkingMinutes != 660 { t.Errorf("total minutes = %d, want 660", got.TotalWorkingMinutes) }
}

func TestRunSyncNoEventsIssueStillSnapshotted(t *testing.T) {
    st := newFakeStore()
    svc := testService(t, st, fixtureJira(t))
    if _, err := svc.RunSync(context.Background(), false); err != nil { t.Fatal(err) }
    var got domain.Snapshot
    for _, s := range st.rows {
        if s.IssueKey == "PROJ-2" { got = s }
    }
    if got.HistoryID == "" { t.Fatalf("issue without changelog must still produce a snapshot") }
    if got.TransitionCount != 0 || got.BackflowCount != 0 {
        t.Errorf("empty changelog should have zero transitions: %+v", got)
    }
    if got.CurrentStatus != "open" { t.Errorf("current status = %q", got.CurrentStatus) }
    if got.DevCycleMinutes != nil { t.Errorf("dev cycle must be absent") }
}

func TestRunSyncAdvancesCursor(t *testing.T) {
    st := newFakeStore()
    svc := testService(t, st, fixtureJira(t))
    if _, err := svc.RunSync(context.Background(), false); err != nil { t.Fatal(err) }
    if st.cursor == nil { t.Fatalf("cursor not advanced") }
    if !st.cursor.Equal(utc(t, "2025-05-27 12:00:00")) {
        t.Errorf("cursor = %v, want newest updated instant", st.cursor)
    }
}

func TestRunSyncCursorNotPastFailedWrite(t *testing.T) {
    st := newFakeStore()
    // PROJ-1 (updated 12:00) fails to write; PROJ-2 (updated 10:00) lands.
    st.failIDs[HistoryID("10001", utc(t, "2025-05-27 09:00:00"))] = true
    svc := testService(t, st, fixtureJira(t))
    stats, err := svc.RunSync(context.Background(), false)
    if err != nil { t.Fatal(err) }
    if stats.Failed != 1 || stats.Inserted != 1 {
        t.Fatalf("stats wrong: %+v", stats)
    }
    if st.cursor == nil { t.Fatalf("cursor should still advance over successes") }
    if !st.cursor.Equal(utc(t, "2025-05-27 10:00:00")) {
        t.Errorf("cursor = %v, must stay below the failed issue's updated instant", st.cursor)
    }
}

func TestRunSyncCursorPinnedAtOldestFailure(t *testing.T) {
    st := newFakeStore()
    // The older issue PROJ-2 (updated 10:00) fails while the newer PROJ-1
    // (updated 12:00) succeeds; the cursor must be pinned at the failure so
    // the inclusive search window picks PROJ-2 up again.
    st.failIDs[HistoryID("10002", utc(t, "2025-05-26 09:00:00"))] = true
    svc := testService(t, st, fixtureJira(t))
    if _, err := svc.RunSync(context.Background(), false); err != nil { t.Fatal(err) }
    if st.cursor == nil { t.Fatalf("cursor not set") }
    if !st.cursor.Equal(utc(t, "2025-05-27 10:00:00")) {
        t.Errorf("cursor = %v, want the failed issue's updated instant", st.cursor)
    }
}

func TestRunSyncSecondRunSkipsDuplicates(t *testing.T) {
    st := newFakeStore()
    jira := fixtureJira(t)
    svc := testService(t, st, jira)
    if _, err := svc.RunSync(context.Background(), false); err != nil { t.Fatal(err) }
    stats, err := svc.RunSync(context.Background(), false)
    if err != nil { t.Fatal(err) }
    if stats.Inserted != 0 || stats.Skipped != 2 {
        t.Errorf("unchanged issues should be skipped: %+v", stats)
    }
}

func TestResyncIssueOverwrites(t *testing.T) {
    st := newFakeStore()
    svc := testService(t, st, fixtureJira(t))
    if _, err := svc.RunSync(context.Background(), false); err != nil { t.Fatal(err) }
    out, err := svc.ResyncIssue(context.Background(), "PROJ-1")
    if err != nil { t.Fatal(err) }
    if out.Inserted != 1 || out.Skipped != 0 {
        t.Errorf("resync should overwrite, got %+v", out)
    }
}
