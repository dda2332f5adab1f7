package recall

import (
	"context"

	"github.com/rushteam/bookrank/core"
)

// CandidateSource 表示一个候选来源（图谱 / 全文语义 / 热门 / ...）。
//
// 实现必须是只读、无副作用的查询；userID 为空表示匿名，contextID 为空表示无上下文。
// 返回的候选数量不超过 limit。
type CandidateSource interface {
	Name() string
	GenerateCandidates(ctx context.Context, userID, contextID *int64, limit int) ([]core.Candidate, error)
}

// SourceFunc 把函数适配为 CandidateSource，便于测试和轻量来源。
type SourceFunc struct {
	SourceName string
	Fn         func(ctx context.Context, userID, contextID *int64, limit int) ([]core.Candidate, error)
}

func (s SourceFunc) Name() string { return s.SourceName }

func (s SourceFunc) GenerateCandidates(ctx context.Context, userID, contextID *int64, limit int) ([]core.Candidate, error) {
	return s.Fn(ctx, userID, contextID, limit)
}
