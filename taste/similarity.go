package taste

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/rushteam/bookrank/core"
)

// CosineSimilarity 计算两个稀疏向量的余弦相似度，任一为空或零向量时返回 0。
// 结果与参数顺序无关。
func CosineSimilarity(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	// 固定顺序，保证对称输入得到逐位相同的浮点结果
	sort.Strings(keys)

	va := make([]float64, len(keys))
	vb := make([]float64, len(keys))
	for i, k := range keys {
		va[i] = a[k]
		vb[i] = b[k]
	}
	na, nb := floats.Norm(va, 2), floats.Norm(vb, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(va, vb) / (na * nb)
}

// FindSimilarUsers 在候选人群中找出与 target 最相似的用户。
//
// 跳过 target 自己和空向量，只保留相似度 >= threshold 的用户，
// 按相似度降序（同分按 userID 升序）取前 topN 个。target 为空向量时返回空。
func FindSimilarUsers(target core.UserTasteVector, population []core.UserTasteVector, threshold float64, topN int) []core.SimilarUser {
	if target.IsEmpty() {
		return nil
	}
	var out []core.SimilarUser
	for _, other := range population {
		if other.UserID == target.UserID || other.IsEmpty() {
			continue
		}
		sim := CosineSimilarity(target.Features, other.Features)
		if sim >= threshold {
			out = append(out, core.SimilarUser{UserID: other.UserID, SimilarityScore: sim})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SimilarityScore != out[j].SimilarityScore {
			return out[i].SimilarityScore > out[j].SimilarityScore
		}
		return out[i].UserID < out[j].UserID
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}
