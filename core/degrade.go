package core

// Result 是尽力而为调用的返回值：要么有值，要么有错误。
//
// 外部来源（候选、活动数据、缓存读取）的失败统一通过 Degrade 降级为默认值，
// 调用方不再各自写 if err != nil { return empty }。
type Result[T any] struct {
	Value T
	Err   error
}

// Try 把 (value, err) 包装为 Result。
func Try[T any](v T, err error) Result[T] {
	return Result[T]{Value: v, Err: err}
}

// Ok 返回成功的 Result。
func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

// Fail 返回失败的 Result。
func Fail[T any](err error) Result[T] { return Result[T]{Err: err} }

// OK 报告是否成功。
func (r Result[T]) OK() bool { return r.Err == nil }

// Degrade 成功时返回值；失败时调用 onErr（可为空）并返回 fallback。
func (r Result[T]) Degrade(fallback T, onErr func(error)) T {
	if r.Err == nil {
		return r.Value
	}
	if onErr != nil {
		onErr(r.Err)
	}
	return fallback
}
