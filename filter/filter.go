package filter

import (
	"context"

	"github.com/rushteam/bookrank/core"
)

// Filter 判断一个候选是否应该被过滤掉。
// 返回 true 表示应该过滤（移除），false 表示保留。
type Filter interface {
	Name() string
	ShouldFilter(ctx context.Context, rctx *core.RecommendContext, c *core.Candidate) (bool, error)
}
