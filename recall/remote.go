package recall

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/rushteam/bookrank/core"
)

// RemoteSource 通过 HTTP 调用外部候选服务（图谱遍历、全文/向量检索等）。
//
// 请求：POST Endpoint {"user_id":1,"context_id":2,"limit":250}
// 响应：{"candidates":[{"item_id":10,"source":"NEO4J_GENRE","initial_score":0.66,"reason":"..."}]}
//
// 候选存储本身不在此实现，这里只负责契约适配。
type RemoteSource struct {
	SourceName string
	Endpoint   string
	Timeout    time.Duration
	Client     *http.Client
}

type remoteRequest struct {
	UserID    *int64 `json:"user_id,omitempty"`
	ContextID *int64 `json:"context_id,omitempty"`
	Limit     int    `json:"limit"`
}

type remoteCandidate struct {
	ItemID       int64      `json:"item_id"`
	Source       string     `json:"source"`
	InitialScore *float64   `json:"initial_score"`
	Reason       string     `json:"reason"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	BookID       *int64     `json:"book_id,omitempty"`
	AuthorID     *int64     `json:"author_id,omitempty"`
}

type remoteResponse struct {
	Candidates []remoteCandidate `json:"candidates"`
}

func (r *RemoteSource) Name() string { return r.SourceName }

func (r *RemoteSource) GenerateCandidates(ctx context.Context, userID, contextID *int64, limit int) ([]core.Candidate, error) {
	if r.Endpoint == "" {
		return nil, fmt.Errorf("remote source %s: endpoint is required", r.SourceName)
	}

	client := r.Client
	if client == nil {
		t := r.Timeout
		if t <= 0 {
			t = 2 * time.Second
		}
		client = &http.Client{Timeout: t}
	}

	raw, err := json.Marshal(remoteRequest{UserID: userID, ContextID: contextID, Limit: limit})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote source %s: %w", r.SourceName, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("remote source %s status=%d body=%s", r.SourceName, resp.StatusCode, string(b))
	}

	var res remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("remote source %s decode: %w", r.SourceName, err)
	}

	out := make([]core.Candidate, 0, len(res.Candidates))
	for _, rc := range res.Candidates {
		c := core.NewCandidate(rc.ItemID, core.SourceTag(rc.Source), rc.InitialScore, rc.Reason)
		c.CreatedAt = rc.CreatedAt
		c.BookID = rc.BookID
		c.AuthorID = rc.AuthorID
		out = append(out, c)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ CandidateSource = (*RemoteSource)(nil)
