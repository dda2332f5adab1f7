package filter

import (
	"context"

	"github.com/rushteam/bookrank/core"
	"github.com/rushteam/bookrank/pkg/dsl"
)

// ExprFilter 是资格表达式过滤器：表达式为 true 的候选保留，为 false 的过滤掉。
type ExprFilter struct {
	Expr string
}

// NewExprFilter 创建表达式过滤器，构造时即编译，表达式错误尽早暴露。
func NewExprFilter(expr string) (*ExprFilter, error) {
	if expr != "" {
		if _, err := dsl.Compile(expr); err != nil {
			return nil, err
		}
	}
	return &ExprFilter{Expr: expr}, nil
}

func (f *ExprFilter) Name() string { return "filter.expr" }

func (f *ExprFilter) ShouldFilter(_ context.Context, rctx *core.RecommendContext, c *core.Candidate) (bool, error) {
	keep, err := dsl.Eval(f.Expr, rctx, c)
	if err != nil {
		return false, err
	}
	return !keep, nil
}
