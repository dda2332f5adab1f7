package recall

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rushteam/bookrank/core"
)

// CircleReader 读取用户的相似用户以及他们的近期书评（由 taste.Engine 实现）。
type CircleReader interface {
	SimilarUsers(ctx context.Context, userID int64) ([]core.SimilarUser, error)
	RecentReviews(ctx context.Context, userIDs []int64, since time.Time) ([]core.ReviewWithKeywords, error)
}

// CircleSource 是书评域的“相似读者”来源：推荐口味相近用户最近写的书评。
// InitialScore 为作者与当前用户的相似度。
type CircleSource struct {
	Reader   CircleReader
	Lookback time.Duration // 默认 7 天
	Now      func() time.Time
}

func (s *CircleSource) Name() string { return "review_circle" }

func (s *CircleSource) GenerateCandidates(ctx context.Context, userID, contextID *int64, limit int) ([]core.Candidate, error) {
	if userID == nil || s.Reader == nil {
		return nil, nil
	}

	similar, err := s.Reader.SimilarUsers(ctx, *userID)
	if err != nil {
		return nil, fmt.Errorf("similar users: %w", err)
	}
	if len(similar) == 0 {
		return nil, nil
	}

	sim := make(map[int64]float64, len(similar))
	ids := make([]int64, 0, len(similar))
	for _, su := range similar {
		sim[su.UserID] = su.SimilarityScore
		ids = append(ids, su.UserID)
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	lookback := s.Lookback
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}
	reviews, err := s.Reader.RecentReviews(ctx, ids, now().Add(-lookback))
	if err != nil {
		return nil, fmt.Errorf("recent reviews: %w", err)
	}

	out := make([]core.Candidate, 0, len(reviews))
	for _, r := range reviews {
		if r.UserID == *userID {
			continue
		}
		if contextID != nil && r.BookID != *contextID {
			continue
		}
		c := core.NewCandidate(r.ReviewID, core.SourceGraphSimilarUser, core.Float(sim[r.UserID]), "written by a reader with similar taste")
		created := r.CreatedAt
		c.CreatedAt = &created
		c.BookID = core.Int64(r.BookID)
		c.AuthorID = core.Int64(r.UserID)
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		si, _ := out[i].Score()
		sj, _ := out[j].Score()
		if si != sj {
			return si > sj
		}
		return out[i].CreatedAt.After(*out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
