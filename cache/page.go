package cache

import (
	"sort"
	"strconv"

	"github.com/rushteam/bookrank/core"
)

// PageOf 按与 Get 完全相同的规则从刚算出的排序结果中取一页：
// 按 FinalScore 降序、同分按成员名降序，截断到 MaxItems，游标语义与 Get 一致。
func (c *RankedCache) PageOf(candidates []core.Candidate, cursor *string, limit int) core.Page {
	type row struct {
		member string
		c      core.Candidate
	}
	rows := make([]row, 0, len(candidates))
	seen := make(map[int64]struct{}, len(candidates))
	for _, cand := range candidates {
		if cand.ItemID <= 0 {
			continue
		}
		if _, dup := seen[cand.ItemID]; dup {
			continue
		}
		seen[cand.ItemID] = struct{}{}
		rows = append(rows, row{member: Member(c.Domain, cand.ItemID), c: cand})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].c.FinalScore != rows[j].c.FinalScore {
			return rows[i].c.FinalScore > rows[j].c.FinalScore
		}
		return rows[i].member > rows[j].member
	})
	if len(rows) > c.maxItems() {
		rows = rows[:c.maxItems()]
	}

	start := 0
	if cursor != nil && *cursor != "" {
		if id, ok := ParseMember(*cursor); ok {
			for i, r := range rows {
				if r.c.ItemID == id {
					start = i + 1
					break
				}
			}
		}
	}
	if start > len(rows) {
		start = len(rows)
	}
	end := len(rows)
	hasMore := false
	if limit > 0 && start+limit < len(rows) {
		end = start + limit
		hasMore = true
	}

	items := make([]core.RecommendationResult, 0, end-start)
	for i := start; i < end; i++ {
		r := rows[i]
		items = append(items, core.RecommendationResult{
			ItemID: r.c.ItemID,
			Score:  r.c.FinalScore,
			Rank:   i + 1,
			Source: r.c.Source,
			Reason: r.c.Reason,
		})
	}
	page := core.Page{Items: items}
	if hasMore && len(items) > 0 {
		next := strconv.FormatInt(items[len(items)-1].ItemID, 10)
		page.NextCursor = &next
	}
	return page
}
