package core

// RecommendationResult 是对外可见的有序推荐结果。
type RecommendationResult struct {
	ItemID int64     `json:"itemId"`
	Score  float64   `json:"score"`
	Rank   int       `json:"rank"` // 从 1 开始，翻页时延续上一页编号
	Source SourceTag `json:"source,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

// Page 是一页推荐结果。NextCursor 为最后一项的 ID，末页为空。
type Page struct {
	Items      []RecommendationResult `json:"items"`
	NextCursor *string                `json:"nextCursor,omitempty"`
}

// ScoreBreakdown 是单个候选的打分明细，仅用于诊断。
type ScoreBreakdown struct {
	ItemID     int64              `json:"itemId"`
	Signals    map[string]float64 `json:"signals"`
	Weights    map[string]float64 `json:"weights"`
	FinalScore float64            `json:"finalScore"`
	Source     SourceTag          `json:"source"`
	Reason     string             `json:"reason"`
}
