/* Copyright (c) 2025 JiraCounter authors
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/AndrzejSwistowski/jiracounter/internal/adapters/jira"
    "github.com/AndrzejSwistowski/jiracounter/internal/config"
    apphttp "github.com/AndrzejSwistowski/jiracounter/internal/http"
    "github.com/AndrzejSwistowski/jiracounter/internal/jobs"
    "github.com/AndrzejSwistowski/jiracounter/internal/logger"
    "github.com/AndrzejSwistowski/jiracounter/internal/services"
    "github.com/AndrzejSwistowski/jiracounter/internal/store"
)

func main() {
    cfg := config.Load()
    log := logger.New(cfg)
    if err := cfg.Validate(); err != nil { log.Fatal().Err(err).Msg("invalid configuration") }

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    db := store.MustOpen(ctx, cfg, log)
    defer db.Close()
    repository := store.NewRepository(db, log)

    jc := jira.NewClient(cfg, log)
    svc := services.New(cfg, log, repository, jc)

    router := apphttp.NewRouter(cfg, log, svc)

    cron := jobs.NewCron(cfg, log, svc, repository)
    cron.Start()
    defer cron.Stop()

    errCh := make(chan error, 1)
    go func() { errCh <- router.Run(cfg.HTTPAddr) }()

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

    select {
    case <-sigCh:
        log.Info().Msg("shutting down...")
    case err := <-errCh:
        if err != nil { log.Error().Err(err).Msg("http server error") }
    }

    time.Sleep(500 * time.Millisecond)
}
