package domain

import "time"

// Issue is the slim view of a tracker issue the engine needs: identity,
// current status, and the source timestamps everything is measured against.
type Issue struct {
    ID        string
    Key       string
    Status    string
    CreatedAt time.Time
    UpdatedAt time.Time
}

// RawChangeEvent is one field-change observation from the issue tracker
// changelog. Batches may arrive unordered and with duplicates.
type RawChangeEvent struct {
    IssueID   string
    IssueKey  string
    Field     string
    FromValue string
    ToValue   string
    ChangedAt time.Time
    Author    string
}

// StatusChange is a normalized status-field event. Canonical forms are
// lower-cased and used for all logic; Display forms are kept for output.
type StatusChange struct {
    From        string
    FromDisplay string
    To          string
    ToDisplay   string
    At          time.Time
    Author      string
}

// StatusInterval is one contiguous occupancy of a status. ExitedAt is nil
// while the issue is still in the status.
type StatusInterval struct {
    Status    string
    Display   string
    EnteredAt time.Time
    ExitedAt  *time.Time
}

// Transition records one status change. FromStatus is empty for the first
// observed status.
type Transition struct {
    FromStatus        string
    ToStatus          string
    FromDisplay       string
    ToDisplay         string
    At                time.Time
    MinutesInPrevious int
    Forward           bool
    Backflow          bool
}

// Metrics is the aggregated figures for one issue as of a point in time.
type Metrics struct {
    TotalWorkingMinutes int
    CategoryMinutes     map[string]int
    BackflowCount       int
    TransitionCount     int
    DistinctStatuses    []string
    CurrentStatus       string
    PreviousStatus      string
    TodoExitAt          *time.Time
    DevStartedAt        *time.Time
    CompletedAt         *time.Time
    // DevCycleMinutes is nil when the issue never reached the configured
    // selected-for-development status; nil and zero mean different things
    // downstream.
    DevCycleMinutes *int
}

// Snapshot is one computed, uniquely identified analytics record.
// Recomputing from the same raw events yields an identical snapshot.
type Snapshot struct {
    HistoryID           string
    IssueID             string
    IssueKey            string
    AsOf                time.Time
    CreatedAt           time.Time
    TotalWorkingMinutes int
    CategoryMinutes     map[string]int
    BackflowCount       int
    TransitionCount     int
    DistinctStatuses    []string
    CurrentStatus       string
    PreviousStatus      string
    TodoExitAt          *time.Time
    DevStartedAt        *time.Time
    DevCycleMinutes     *int
    Transitions         []Transition
}

// WriteOutcome summarizes one write batch. Failed entries carry the issue
// key so callers can report per item.
type WriteOutcome struct {
    Inserted int
    Skipped  int
    Failed   int
    Errors   []WriteError
}

type WriteError struct {
    HistoryID string
    IssueKey  string
    Err       error
}

// SyncStats is the bookkeeping for one sync run.
type SyncStats struct {
    IssuesScanned int
    Inserted      int
    Skipped       int
    Failed        int
    Warnings      int
}
