// Package bookrank 是书籍 / 书评个性化排序核心。
//
// 一次推荐请求的链路：
//
//	召回（图谱 / 语义 / 热门 / 相似读者）→ 合并去重 → 过滤 → 补充元数据 → 混合打分 → 排序缓存 → 分页
//
// 后台批处理维护用户口味向量、相似用户与书评圈话题。
// New 按 config.Config 组装全部组件，外部数据来源通过 Collaborators 注入。
package bookrank

import "github.com/rushteam/bookrank/pipeline"

// 轻量 facade：便于直接 import "bookrank" 使用核心抽象。
type Pipeline = pipeline.Pipeline
type Node = pipeline.Node
type Kind = pipeline.Kind

const (
	KindRecall = pipeline.KindRecall
	KindFilter = pipeline.KindFilter
	KindEnrich = pipeline.KindEnrich
	KindRank   = pipeline.KindRank
	KindReRank = pipeline.KindReRank
)
