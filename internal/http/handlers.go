/* Copyright (c) 2025 JiraCounter authors
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"
    "errors"
    "net/http"
    "strconv"

    "github.com/gin-gonic/gin"
    "github.com/rs/zerolog"

    "github.com/AndrzejSwistowski/jiracounter/internal/calendar"
    "github.com/AndrzejSwistowski/jiracounter/internal/config"
    "github.com/AndrzejSwistowski/jiracounter/internal/domain"
    "github.com/AndrzejSwistowski/jiracounter/internal/metrics"
    "github.com/AndrzejSwistowski/jiracounter/internal/services"
    "github.com/AndrzejSwistowski/jiracounter/internal/store"
)

type service interface {
    RunSync(ctx context.Context, forceOverride bool) (domain.SyncStats, error)
    ResyncIssue(ctx context.Context, key string) (domain.WriteOutcome, error)
    GetLastRun(ctx context.Context) (*store.LastRun, error)
    IssueSnapshots(ctx context.Context, key string, limit int) ([]domain.Snapshot, error)
}

type Handlers struct {
    cfg   config.Config
    log   zerolog.Logger
    svc   service
    clock *calendar.Clock
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc any) *Handlers {
    return &Handlers{cfg: cfg, log: log, svc: svc.(service), clock: calendar.NewClock(cfg.Workflow.Calendar)}
}

func (h *Handlers) Healthz(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) LastRun(c *gin.Context) {
    lr, err := h.svc.GetLastRun(c.Request.Context())
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, lr)
}

func (h *Handlers) RunNow(c *gin.Context) {
    force := c.Query("force") == "true"
    // Detached from the request context so a closed connection does not
    // cancel the sync.
    go func() {
        if _, err := h.svc.RunSync(context.Background(), force); err != nil && !errors.Is(err, services.ErrSyncRunning) {
            h.log.Error().Err(err).Msg("manual sync failed")
        }
    }()
    c.JSON(http.StatusAccepted, gin.H{"status": "queued", "force": force})
}

func (h *Handlers) ResyncIssue(c *gin.Context) {
    key := c.Param("key")
    out, err := h.svc.ResyncIssue(c.Request.Context(), key)
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, out)
}

func (h *Handlers) IssueSnapshots(c *gin.Context) {
    key := c.Param("key")
    limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
    snaps, err := h.svc.IssueSnapshots(c.Request.Context(), key, limit)
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"issue": key, "snapshots": snaps})
}

// Report renders the newest snapshot in the flat legacy shape with
// human-readable working periods.
func (h *Handlers) Report(c *gin.Context) {
    key := c.Param("key")
    snaps, err := h.svc.IssueSnapshots(c.Request.Context(), key, 1)
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    if len(snaps) == 0 {
        c.JSON(http.StatusNotFound, gin.H{"error": "no snapshots for issue"})
        return
    }
    c.JSON(http.StatusOK, metrics.Legacy(snaps[0], h.clock))
}
