package pipeline

import (
	"context"

	"github.com/rushteam/bookrank/core"
)

// Kind 用于标记 Node 类型，方便观测/编排（例如按阶段打点）。
type Kind string

const (
	KindRecall Kind = "recall" // 召回阶段：生成并合并候选
	KindFilter Kind = "filter" // 过滤阶段：剔除不符合约束的候选
	KindEnrich Kind = "enrich" // 补充阶段：补齐打分所需的元数据
	KindRank   Kind = "rank"   // 排序阶段：混合打分并排序
	KindReRank Kind = "rerank" // 重排阶段：截断、采样
)

// Node 是 Pipeline 的最小可扩展单元。
// 统一采用“输入候选 -> 输出候选”的形态。
type Node interface {
	Name() string
	Kind() Kind

	Process(
		ctx context.Context,
		rctx *core.RecommendContext,
		candidates []core.Candidate,
	) ([]core.Candidate, error)
}
