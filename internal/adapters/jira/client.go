/* Copyright (c) 2025 JiraCounter authors
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strings"
    "time"

    "github.com/rs/zerolog"

    "github.com/AndrzejSwistowski/jiracounter/internal/config"
    "github.com/AndrzejSwistowski/jiracounter/internal/domain"
)

type Client struct {
    baseURL string
    token   string
    user    string
    pass    string
    jql     string
    http    *http.Client
    log     zerolog.Logger
    apiVer  string
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        baseURL: cfg.JiraBaseURL,
        token:   cfg.JiraPAT,
        user:    cfg.JiraUsername,
        pass:    cfg.JiraPassword,
        jql:     cfg.JiraDefaultJQL,
        http:    &http.Client{Timeout: cfg.HTTPTimeout},
        log:     log,
        apiVer:  cfg.JiraAPIVersion,
    }
}

func (c *Client) apiPath(suffix string) string {
    ver := c.apiVer
    if ver == "" { ver = "2" }
    return "/rest/api/" + ver + suffix
}

func (c *Client) apiURL(path string, q url.Values) string {
    base := strings.TrimRight(c.baseURL, "/")
    if !strings.HasPrefix(path, "/") { path = "/" + path }
    u := base + path
    if len(q) > 0 { u = u + "?" + q.Encode() }
    return u
}

func (c *Client) doJSON(ctx context.Context, method, u string, body any) (map[string]any, error) {
    if c.baseURL == "" { return nil, errors.New("jira: empty baseURL") }
    var payload []byte
    if body != nil {
        b, err := json.Marshal(body)
        if err != nil { return nil, err }
        payload = b
    }
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        var r io.Reader
        if payload != nil { r = strings.NewReader(string(payload)) }
        req, err := http.NewRequestWithContext(ctx, method, u, r)
        if err != nil { return nil, err }
        if payload != nil { req.Header.Set("Content-Type", "application/json") }
        if c.token != "" {
            req.Header.Set("Authorization", "Bearer "+c.token)
        } else if c.user != "" && c.pass != "" {
            req.SetBasicAuth(c.user, c.pass)
        }
        resp, err := c.http.Do(req)
        if err != nil { lastErr = err } else {
            b, readErr := io.ReadAll(resp.Body)
            resp.Body.Close()
            if readErr != nil { return nil, readErr }
            if resp.StatusCode >= 300 {
                // retry on 429/5xx
                if resp.StatusCode == 429 || resp.StatusCode >= 500 {
                    lastErr = fmt.Errorf("jira api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
                } else {
                    return nil, fmt.Errorf("jira api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
                }
            } else {
                var out map[string]any
                if err := json.Unmarshal(b, &out); err != nil { return nil, err }
                return out, nil
            }
        }
        time.Sleep(time.Duration(300*(1<<attempt)) * time.Millisecond)
    }
    return nil, lastErr
}

// SearchUpdated lists issues updated since the given instant, oldest page
// first. A nil since falls back to the configured default JQL window.
func (c *Client) SearchUpdated(ctx context.Context, since *time.Time, startAt, max int) ([]domain.Issue, error) {
    jql := c.jql
    if since != nil {
        jql = fmt.Sprintf("updated >= '%s' ORDER BY updated ASC", since.UTC().Format("2006-01-02 15:04"))
    }
    q := url.Values{}
    q.Set("jql", jql)
    q.Set("fields", "status,created,updated")
    if startAt > 0 { q.Set("startAt", fmt.Sprint(startAt)) }
    if max > 0 { q.Set("maxResults", fmt.Sprint(max)) }
    res, err := c.doJSON(ctx, http.MethodGet, c.apiURL(c.apiPath("/search"), q), nil)
    if err != nil { return nil, err }
    arr, _ := res["issues"].([]any)
    out := make([]domain.Issue, 0, len(arr))
    for _, it := range arr {
        im, _ := it.(map[string]any)
        if im == nil { continue }
        out = append(out, parseIssue(im))
    }
    return out, nil
}

// Issue fetches a single issue's identity, status and timestamps.
func (c *Client) Issue(ctx context.Context, key string) (domain.Issue, error) {
    if key == "" { return domain.Issue{}, errors.New("jira: empty issue key") }
    q := url.Values{}
    q.Set("fields", "status,created,updated")
    u := c.apiURL(c.apiPath("/issue/"+url.PathEscape(key)), q)
    res, err := c.doJSON(ctx, http.MethodGet, u, nil)
    if err != nil { return domain.Issue{}, err }
    return parseIssue(res), nil
}

// ChangeEvents pulls the full changelog for an issue, walking pagination
// until exhausted. Entries come back raw; ordering and deduplication are
// the caller's concern.
func (c *Client) ChangeEvents(ctx context.Context, key string) ([]domain.RawChangeEvent, error) {
    if key == "" { return nil, errors.New("jira: empty issue key") }
    var events []domain.RawChangeEvent
    startAt := 0
    const page = 100
    for {
        q := url.Values{}
        if startAt > 0 { q.Set("startAt", fmt.Sprint(startAt)) }
        q.Set("maxResults", fmt.Sprint(page))
        u := c.apiURL(c.apiPath("/issue/"+url.PathEscape(key)+"/changelog"), q)
        res, err := c.doJSON(ctx, http.MethodGet, u, nil)
        if err != nil { return nil, err }
        histories, _ := res["values"].([]any)
        if histories == nil { histories, _ = res["histories"].([]any) }
        if len(histories) == 0 { break }
        for _, h := range histories {
            hv, _ := h.(map[string]any)
            if hv == nil { continue }
            at := parseTimeUTC(hv["created"])
            if at == nil {
                c.log.Debug().Str("issue", key).Msg("changelog entry without parseable timestamp dropped")
                continue
            }
            author := ""
            if a, ok := hv["author"].(map[string]any); ok { author = toStr(a["displayName"]) }
            items, _ := hv["items"].([]any)
            for _, it := range items {
                iv, _ := it.(map[string]any)
                if iv == nil { continue }
                events = append(events, domain.RawChangeEvent{
                    IssueKey:  key,
                    Field:     toStr(iv["field"]),
                    FromValue: toStr(iv["fromString"]),
                    ToValue:   toStr(iv["toString"]),
                    ChangedAt: *at,
                    Author:    author,
                })
            }
        }
        if len(histories) < page { break }
        startAt += page
    }
    return events, nil
}

func parseIssue(im map[string]any) domain.Issue {
    fields, _ := im["fields"].(map[string]any)
    status := ""
    if ss, ok := fields["status"].(map[string]any); ok { status = toStr(ss["name"]) }
    issue := domain.Issue{
        ID:     toStr(im["id"]),
        Key:    toStr(im["key"]),
        Status: status,
    }
    if t := parseTimeUTC(fields["created"]); t != nil { issue.CreatedAt = *t }
    if t := parseTimeUTC(fields["updated"]); t != nil { issue.UpdatedAt = *t }
    return issue
}

func toStr(v any) string {
    s, _ := v.(string)
    return s
}

// parseTimeUTC accepts the timestamp layouts Jira emits and normalizes to
// UTC. Returns nil when the value is absent or unparseable.
func parseTimeUTC(v any) *time.Time {
    s, _ := v.(string)
    if strings.TrimSpace(s) == "" { return nil }
    layouts := []string{
        "2006-01-02T15:04:05.000-0700",
        time.RFC3339,
        "2006-01-02T15:04:05-0700",
        "2006-01-02",
    }
    for _, l := range layouts {
        if t, err := time.Parse(l, s); err == nil {
            u := t.UTC()
            return &u
        }
    }
    return nil
}
