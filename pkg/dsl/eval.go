// Package dsl 是候选过滤表达式的解释器，基于 CEL (Common Expression Language)。
package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rushteam/bookrank/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once

	// programs 缓存已编译的表达式，cel.Program 可并发执行
	programs, _ = lru.New[string, cel.Program](256)
)

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("candidate", cel.DynType),
			cel.Variable("rctx", cel.DynType),
		)
	})
	return celEnv, celEnvErr
}

// Compile 编译表达式并放入缓存，已编译过的直接返回。
//
// 可用变量：
//   - candidate.id / source / family / reason
//   - candidate.score（无 InitialScore 时为 null）/ candidate.final_score
//   - candidate.book_id / candidate.author_id（可能为 null）
//   - candidate.age_days（无发布时间时为 null）
//   - rctx.user_id / rctx.context_id（可能为 null）/ rctx.domain / rctx.params
//
// 示例：
//   - `candidate.score == null || candidate.score >= 0.05`
//   - `candidate.author_id == null || candidate.author_id != rctx.user_id`
//   - `candidate.age_days == null || candidate.age_days <= 3650.0`
func Compile(expr string) (cel.Program, error) {
	if prg, ok := programs.Get(expr); ok {
		return prg, nil
	}
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %w", err)
	}
	programs.Add(expr, prg)
	return prg, nil
}

// Eval 对单个候选求值，表达式必须返回布尔值。空表达式恒为 true。
func Eval(expr string, rctx *core.RecommendContext, c *core.Candidate) (bool, error) {
	if expr == "" {
		return true, nil
	}
	prg, err := Compile(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any{
		"candidate": candidateInput(rctx, c),
		"rctx":      contextInput(rctx),
	})
	if err != nil {
		return false, fmt.Errorf("eval error: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}

func candidateInput(rctx *core.RecommendContext, c *core.Candidate) map[string]any {
	in := map[string]any{
		"id":          c.ItemID,
		"source":      string(c.Source),
		"family":      string(c.Family),
		"reason":      c.Reason,
		"final_score": c.FinalScore,
		"score":       nil,
		"book_id":     nil,
		"author_id":   nil,
		"age_days":    nil,
	}
	if v, ok := c.Score(); ok {
		in["score"] = v
	}
	if c.BookID != nil {
		in["book_id"] = *c.BookID
	}
	if c.AuthorID != nil {
		in["author_id"] = *c.AuthorID
	}
	if c.CreatedAt != nil && rctx != nil && !rctx.Now.IsZero() {
		in["age_days"] = rctx.Now.Sub(*c.CreatedAt).Hours() / 24
	}
	return in
}

func contextInput(rctx *core.RecommendContext) map[string]any {
	in := map[string]any{
		"user_id":    nil,
		"context_id": nil,
		"domain":     "",
		"params":     map[string]any{},
	}
	if rctx == nil {
		return in
	}
	if rctx.UserID != nil {
		in["user_id"] = *rctx.UserID
	}
	if rctx.ContextID != nil {
		in["context_id"] = *rctx.ContextID
	}
	in["domain"] = string(rctx.Domain)
	if rctx.Params != nil {
		in["params"] = rctx.Params
	}
	return in
}
