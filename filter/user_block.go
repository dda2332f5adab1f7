package filter

import (
	"context"
	"strconv"

	"github.com/rushteam/bookrank/core"
)

// UserBlockFilter 过滤当前用户拉黑的作者写的书评。
// 拉黑列表存于 {KeyPrefix}:{UserID}，内容为作者 ID 的 JSON 数组。
type UserBlockFilter struct {
	Store     *StoreAdapter
	KeyPrefix string // 默认 "user:block"
}

// NewUserBlockFilter 创建用户拉黑过滤器。
func NewUserBlockFilter(adapter *StoreAdapter, keyPrefix string) *UserBlockFilter {
	return &UserBlockFilter{Store: adapter, KeyPrefix: keyPrefix}
}

func (f *UserBlockFilter) Name() string { return "filter.user_block" }

func (f *UserBlockFilter) ShouldFilter(ctx context.Context, rctx *core.RecommendContext, c *core.Candidate) (bool, error) {
	if f.Store == nil || rctx == nil || rctx.UserID == nil || c.AuthorID == nil {
		return false, nil
	}
	prefix := f.KeyPrefix
	if prefix == "" {
		prefix = "user:block"
	}
	blocked, err := f.Store.IDSet(ctx, prefix+":"+strconv.FormatInt(*rctx.UserID, 10))
	if err != nil {
		return false, err
	}
	_, ok := blocked[*c.AuthorID]
	return ok, nil
}
