package core

import (
	"strconv"
	"time"
)

// RecommendContext 承载一次推荐请求的用户/场景/实时信息，贯穿整个 Pipeline 透传。
//
// 打分阶段只读取这里的数据，不做任何 I/O：会话加权（SessionBoosts）
// 与当前时间（Now）在进入打分前就已准备好，保证同样输入得到同样分数。
type RecommendContext struct {
	RequestID string
	Domain    Domain

	// UserID 为空表示匿名请求，走默认路径。
	UserID *int64
	// ContextID 书评域中表示书籍上下文，为空表示 feed。
	ContextID *int64
	SessionID string

	// Now 是本次请求的参考时间，新鲜度等信号以此计算。
	Now time.Time

	// SessionBoosts 是会话内实时加权，itemID -> 累计增量。
	SessionBoosts map[int64]float64

	// Params 请求级参数，可被 CEL 表达式读取。
	Params map[string]any
}

// UserKey 返回用户标识的字符串形式，匿名为 "anon"。
func (rctx *RecommendContext) UserKey() string {
	if rctx == nil || rctx.UserID == nil {
		return "anon"
	}
	return strconv.FormatInt(*rctx.UserID, 10)
}

// Boost 返回某个物品的会话加权，不存在为 0。
func (rctx *RecommendContext) Boost(itemID int64) (float64, bool) {
	if rctx == nil || rctx.SessionBoosts == nil {
		return 0, false
	}
	v, ok := rctx.SessionBoosts[itemID]
	return v, ok
}
