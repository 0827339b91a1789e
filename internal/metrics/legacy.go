package metrics

import (
    "github.com/AndrzejSwistowski/jiracounter/internal/calendar"
    "github.com/AndrzejSwistowski/jiracounter/internal/domain"
)

// LegacyView is the flat shape older report consumers still read. It is a
// pure projection of a Snapshot; nothing here is stored.
type LegacyView struct {
    IssueKey          string  `json:"issue_key"`
    Status            string  `json:"status"`
    WorkingMinutes    int     `json:"working_minutes"`
    WorkingDays       int     `json:"working_days"`
    WorkingTimeText   string  `json:"working_time_text"`
    BacklogMinutes    int     `json:"backlog_minutes"`
    ProcessingMinutes int     `json:"processing_minutes"`
    WaitingMinutes    int     `json:"waiting_minutes"`
    BackflowCount     int     `json:"backflow_count"`
    TransitionCount   int     `json:"transition_count"`
    DevCycleText      string  `json:"dev_cycle_text,omitempty"`
}

// Legacy projects a snapshot into the old flat report row.
func Legacy(s domain.Snapshot, clock *calendar.Clock) LegacyView {
    v := LegacyView{
        IssueKey:          s.IssueKey,
        Status:            s.CurrentStatus,
        WorkingMinutes:    s.TotalWorkingMinutes,
        WorkingDays:       clock.WorkingDays(s.TotalWorkingMinutes),
        WorkingTimeText:   calendar.FormatWorkingMinutes(s.TotalWorkingMinutes),
        BacklogMinutes:    s.CategoryMinutes["backlog"],
        ProcessingMinutes: s.CategoryMinutes["processing"],
        WaitingMinutes:    s.CategoryMinutes["waiting"],
        BackflowCount:     s.BackflowCount,
        TransitionCount:   s.TransitionCount,
    }
    if s.DevCycleMinutes != nil { v.DevCycleText = calendar.FormatWorkingMinutes(*s.DevCycleMinutes) }
    return v
}
