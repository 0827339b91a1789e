package metrics

import (
    "reflect"
    "testing"
    "time"

    "github.com/AndrzejSwistowski/jiracounter/internal/calendar"
    "github.com/AndrzejSwistowski/jiracounter/internal/config"
    "github.com/AndrzejSwistowski/jiracounter/internal/domain"
)

func ts(t *testing.T, value string) time.Time {
    t.Helper()
    v, err := time.Parse("2006-01-02 15:04:05", value)
    if err != nil { t.Fatalf("bad time %q: %v", value, err) }
    return v
}

func tp(t *testing.T, value string) *time.Time {
    t.Helper()
    v := ts(t, value)
    return &v
}

func testAggregator(t *testing.T) *Aggregator {
    t.Helper()
    wf := config.DefaultWorkflow()
    return NewAggregator(calendar.NewClock(wf.Calendar), wf.Categories, wf.SelectedForDevelopment)
}

func TestAggregateCategoryBuckets(t *testing.T) {
    a := testAggregator(t)
    created := ts(t, "2025-05-26 09:00:00") // Monday
    asOf := ts(t, "2025-05-28 17:00:00")
    intervals := []domain.StatusInterval{
        {Status: "backlog", EnteredAt: created, ExitedAt: tp(t, "2025-05-27 09:00:00")},
        {Status: "in progress", EnteredAt: ts(t, "2025-05-27 09:00:00"), ExitedAt: tp(t, "2025-05-28 09:00:00")},
        {Status: "in review", EnteredAt: ts(t, "2025-05-28 09:00:00")},
    }
    transitions := []domain.Transition{
        {FromStatus: "backlog", ToStatus: "in progress", At: ts(t, "2025-05-27 09:00:00"), Forward: true},
        {FromStatus: "in progress", ToStatus: "in review", At: ts(t, "2025-05-28 09:00:00"), Forward: true},
    }
    m := a.Aggregate(intervals, transitions, created, asOf)
    if m.TotalWorkingMinutes != 1440 { t.Errorf("total = %d, want 1440", m.TotalWorkingMinutes) }
    if m.CategoryMinutes["backlog"] != 480 { t.Errorf("backlog = %d, want 480", m.CategoryMinutes["backlog"]) }
    if m.CategoryMinutes["processing"] != 960 {
        t.Errorf("processing = %d, want 960", m.CategoryMinutes["processing"])
    }
    if m.TransitionCount != 2 { t.Errorf("transition count = %d", m.TransitionCount) }
    if m.BackflowCount != 0 { t.Errorf("backflow count = %d", m.BackflowCount) }
    if m.CurrentStatus != "in review" || m.PreviousStatus != "in progress" {
        t.Errorf("status pair %q/%q wrong", m.CurrentStatus, m.PreviousStatus)
    }
    want := []string{"backlog", "in progress", "in review"}
    if !reflect.DeepEqual(m.DistinctStatuses, want) {
        t.Errorf("distinct statuses = %v, want %v", m.DistinctStatuses, want)
    }
    if m.TodoExitAt == nil || !m.TodoExitAt.Equal(ts(t, "2025-05-27 09:00:00")) {
        t.Errorf("todo exit wrong: %v", m.TodoExitAt)
    }
}

func TestAggregateUnmappedStatusIgnoredForCategories(t *testing.T) {
    a := testAggregator(t)
    created := ts(t, "2025-05-26 09:00:00")
    asOf := ts(t, "2025-05-26 17:00:00")
    intervals := []domain.StatusInterval{
        {Status: "custom triage", EnteredAt: created},
    }
    m := a.Aggregate(intervals, nil, created, asOf)
    if len(m.CategoryMinutes) != 0 { t.Errorf("unmapped status must not create a bucket: %v", m.CategoryMinutes) }
    if len(m.DistinctStatuses) != 1 || m.DistinctStatuses[0] != "custom triage" {
        t.Errorf("distinct statuses = %v", m.DistinctStatuses)
    }
}

func TestAggregateBackflowCount(t *testing.T) {
    a := testAggregator(t)
    created := ts(t, "2025-05-26 09:00:00")
    transitions := []domain.Transition{
        {FromStatus: "backlog", ToStatus: "in progress", Forward: true},
        {FromStatus: "in progress", ToStatus: "backlog", Backflow: true},
        {FromStatus: "backlog", ToStatus: "in progress", Forward: true},
    }
    m := a.Aggregate(nil, transitions, created, ts(t, "2025-05-26 17:00:00"))
    if m.BackflowCount != 1 { t.Errorf("backflow count = %d, want 1", m.BackflowCount) }
    if m.TransitionCount != 3 { t.Errorf("transition count = %d, want 3", m.TransitionCount) }
}

func TestAggregateDevCycleAbsent(t *testing.T) {
    a := testAggregator(t)
    created := ts(t, "2025-05-26 09:00:00")
    transitions := []domain.Transition{
        {FromStatus: "backlog", ToStatus: "in progress", At: ts(t, "2025-05-26 12:00:00")},
    }
    m := a.Aggregate(nil, transitions, created, ts(t, "2025-05-26 17:00:00"))
    if m.DevCycleMinutes != nil { t.Fatalf("dev cycle must be absent, got %d", *m.DevCycleMinutes) }
    if m.DevStartedAt != nil { t.Fatalf("dev start must be absent") }
}

func TestAggregateDevCycleToAsOf(t *testing.T) {
    a := testAggregator(t)
    created := ts(t, "2025-05-26 09:00:00")
    transitions := []domain.Transition{
        {FromStatus: "backlog", ToStatus: "selected for development", At: ts(t, "2025-05-26 13:00:00")},
    }
    m := a.Aggregate(nil, transitions, created, ts(t, "2025-05-26 17:00:00"))
    if m.DevCycleMinutes == nil { t.Fatalf("dev cycle should be present") }
    if *m.DevCycleMinutes != 240 { t.Errorf("dev cycle = %d, want 240", *m.DevCycleMinutes) }
}

func TestAggregateDevCycleStopsAtCompletion(t *testing.T) {
    a := testAggregator(t)
    created := ts(t, "2025-05-26 09:00:00")
    transitions := []domain.Transition{
        {FromStatus: "backlog", ToStatus: "selected for development", At: ts(t, "2025-05-26 10:00:00")},
        {FromStatus: "selected for development", ToStatus: "in progress", At: ts(t, "2025-05-26 11:00:00")},
        {FromStatus: "in progress", ToStatus: "done", At: ts(t, "2025-05-26 14:00:00")},
    }
    m := a.Aggregate(nil, transitions, created, ts(t, "2025-05-28 17:00:00"))
    if m.CompletedAt == nil || !m.CompletedAt.Equal(ts(t, "2025-05-26 14:00:00")) {
        t.Fatalf("completion instant wrong: %v", m.CompletedAt)
    }
    if m.DevCycleMinutes == nil || *m.DevCycleMinutes != 240 {
        t.Fatalf("dev cycle should stop at completion, got %v", m.DevCycleMinutes)
    }
}

func TestAggregateDeterministic(t *testing.T) {
    a := testAggregator(t)
    created := ts(t, "2025-05-26 09:00:00")
    asOf := ts(t, "2025-05-28 17:00:00")
    intervals := []domain.StatusInterval{
        {Status: "backlog", EnteredAt: created, ExitedAt: tp(t, "2025-05-27 09:00:00")},
        {Status: "in progress", EnteredAt: ts(t, "2025-05-27 09:00:00")},
    }
    transitions := []domain.Transition{
        {FromStatus: "backlog", ToStatus: "in progress", At: ts(t, "2025-05-27 09:00:00"), Forward: true},
    }
    first := a.Aggregate(intervals, transitions, created, asOf)
    second := a.Aggregate(intervals, transitions, created, asOf)
    if !reflect.DeepEqual(first, second) { t.Fatalf("aggregation not deterministic") }
}

func TestLegacyProjection(t *testing.T) {
    wf := config.DefaultWorkflow()
    clock := calendar.NewClock(wf.Calendar)
    cycle := 480
    s := domain.Snapshot{
        IssueKey:            "PROJ-1",
        CurrentStatus:       "in review",
        TotalWorkingMinutes: 960,
        CategoryMinutes:     map[string]int{"backlog": 480, "processing": 480},
        BackflowCount:       1,
        TransitionCount:     3,
        DevCycleMinutes:     &cycle,
    }
    v := Legacy(s, clock)
    if v.WorkingDays != 2 { t.Errorf("working days = %d, want 2", v.WorkingDays) }
    if v.WorkingTimeText != "2 working days" { t.Errorf("working time text = %q", v.WorkingTimeText) }
    if v.DevCycleText != "1 working day (8 hours)" { t.Errorf("dev cycle text = %q", v.DevCycleText) }
    if v.BacklogMinutes != 480 || v.ProcessingMinutes != 480 {
        t.Errorf("bucket projection wrong: %+v", v)
    }
}
