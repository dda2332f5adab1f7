package core

import (
	"strconv"
	"time"
)

// Domain 标识推荐所属的业务域：书籍 或 书评。
type Domain string

const (
	DomainBook   Domain = "book"
	DomainReview Domain = "review"
)

// SourceTag 是候选来源标签（封闭枚举）。
type SourceTag string

const (
	// 书籍域
	SourceGraphCollaborative SourceTag = "NEO4J_COLLABORATIVE"
	SourceGraphGenre         SourceTag = "NEO4J_GENRE"
	SourceGraphAuthor        SourceTag = "NEO4J_AUTHOR"
	SourceGraphTopic         SourceTag = "NEO4J_TOPIC"
	SourceSemantic           SourceTag = "ELASTICSEARCH_SEMANTIC"
	SourceMoreLikeThis       SourceTag = "ELASTICSEARCH_MLT"
	SourcePopularity         SourceTag = "POPULARITY"

	// 书评域
	SourceSimilarReview     SourceTag = "SIMILAR_REVIEW"
	SourceFollowedUser      SourceTag = "FOLLOWED_USER"
	SourceBookPopular       SourceTag = "BOOK_POPULAR"
	SourceRecent            SourceTag = "RECENT"
	SourceGraphSimilarUser  SourceTag = "GRAPH_SIMILAR_USER"
	SourceGraphBookAffinity SourceTag = "GRAPH_BOOK_AFFINITY"
)

// SourceFamily 是来源标签的归类，信号打分器只对自己关心的 family 计分。
type SourceFamily string

const (
	FamilyGraph      SourceFamily = "graph"
	FamilySemantic   SourceFamily = "semantic"
	FamilyPopularity SourceFamily = "popularity"
	FamilySocial     SourceFamily = "social"
	FamilyRecency    SourceFamily = "recency"
	FamilyUnknown    SourceFamily = "unknown"
)

// FamilyOf 返回来源标签所属的 family。
func FamilyOf(tag SourceTag) SourceFamily {
	switch tag {
	case SourceGraphCollaborative, SourceGraphGenre, SourceGraphAuthor, SourceGraphTopic,
		SourceGraphSimilarUser, SourceGraphBookAffinity:
		return FamilyGraph
	case SourceSemantic, SourceMoreLikeThis, SourceSimilarReview:
		return FamilySemantic
	case SourcePopularity, SourceBookPopular:
		return FamilyPopularity
	case SourceFollowedUser:
		return FamilySocial
	case SourceRecent:
		return FamilyRecency
	default:
		return FamilyUnknown
	}
}

// RequiresInitialScore 报告该 family 的候选是否必须携带 InitialScore。
// graph / semantic / popularity 三类信号直接透传 InitialScore，缺失即来源配置错误。
func (f SourceFamily) RequiresInitialScore() bool {
	switch f {
	case FamilyGraph, FamilySemantic, FamilyPopularity:
		return true
	default:
		return false
	}
}

// Candidate 是单个来源给出的待排序物品，只在一次请求内存在。
type Candidate struct {
	ItemID       int64
	Source       SourceTag
	Family       SourceFamily // 构造时由 FamilyOf 预先计算
	InitialScore *float64     // [0,1]，部分来源允许为空
	Reason       string

	// CreatedAt 书籍为出版时间，书评为发表时间。
	CreatedAt *time.Time

	// BookID 仅书评候选使用：所属书籍。
	BookID *int64
	// AuthorID 仅书评候选使用：书评作者。
	AuthorID *int64

	// FinalScore 由 rank 阶段写入。
	FinalScore float64
}

// NewCandidate 创建候选并预计算来源 family。
func NewCandidate(itemID int64, source SourceTag, initialScore *float64, reason string) Candidate {
	return Candidate{
		ItemID:       itemID,
		Source:       source,
		Family:       FamilyOf(source),
		InitialScore: initialScore,
		Reason:       reason,
	}
}

// Score 返回 InitialScore 及其是否存在。
func (c *Candidate) Score() (float64, bool) {
	if c.InitialScore == nil {
		return 0, false
	}
	return *c.InitialScore, true
}

// Validate 检查候选是否满足其来源声明的契约。
// strict 为 true 时（书籍域），分数透传型来源缺失 InitialScore 视为契约违反。
func (c *Candidate) Validate(strict bool) error {
	if c.ItemID <= 0 {
		return NewDomainError(ModuleRecall, ErrorCodeInvalidInput, "candidate: item id must be positive")
	}
	if strict && c.Family.RequiresInitialScore() && c.InitialScore == nil {
		return NewDomainError(ModuleRecall, ErrorCodeContractViolation,
			"candidate "+strconv.FormatInt(c.ItemID, 10)+" from "+string(c.Source)+" has no initial score")
	}
	return nil
}

// Float 返回指向 v 的指针，便于构造可空分数。
func Float(v float64) *float64 { return &v }

// Int64 返回指向 v 的指针。
func Int64(v int64) *int64 { return &v }
