package recall

import (
	"context"

	"github.com/rushteam/bookrank/cache"
	"github.com/rushteam/bookrank/core"
)

// PopularitySource 是热门候选来源，也是个性化数据为空时的全局回退。
//   - 从 Store 的有序集合读取 TopN（由离线任务写入，成员为物品 ID，可带 "book:" 等前缀）
//   - InitialScore = 成员分数 / 榜首分数，落在 [0,1]
//   - 有序集合为空时使用 FallbackIDs，按名次线性给分
type PopularitySource struct {
	Store       core.KeyValueStore
	Key         string // 例如 "popular:books" 或 "popular:reviews"
	Tag         core.SourceTag
	FallbackIDs []int64
}

func (r *PopularitySource) Name() string { return "popularity:" + r.Key }

func (r *PopularitySource) tag() core.SourceTag {
	if r.Tag == "" {
		return core.SourcePopularity
	}
	return r.Tag
}

func (r *PopularitySource) GenerateCandidates(ctx context.Context, _, _ *int64, limit int) ([]core.Candidate, error) {
	if limit <= 0 {
		limit = 100
	}

	if r.Store != nil && r.Key != "" {
		members, err := r.Store.ZRevRange(ctx, r.Key, 0, int64(limit-1))
		if err != nil && !core.IsStoreNotFound(err) {
			return nil, err
		}
		if len(members) > 0 {
			return r.fromMembers(members), nil
		}
	}

	ids := r.FallbackIDs
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]core.Candidate, 0, len(ids))
	for i, id := range ids {
		score := 1 - float64(i)/float64(len(ids))
		out = append(out, core.NewCandidate(id, r.tag(), core.Float(score), "popular"))
	}
	return out, nil
}

func (r *PopularitySource) fromMembers(members []core.ScoredMember) []core.Candidate {
	top := members[0].Score
	out := make([]core.Candidate, 0, len(members))
	for _, m := range members {
		id, ok := cache.ParseMember(m.Member)
		if !ok {
			continue
		}
		score := 0.0
		if top > 0 {
			score = clamp01(m.Score / top)
		}
		out = append(out, core.NewCandidate(id, r.tag(), core.Float(score), "popular"))
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
