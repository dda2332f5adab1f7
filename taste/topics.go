package taste

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rushteam/bookrank/core"
)

// TimeDecay 返回书评在窗口内的时间衰减系数，age 按整小时截断。
//
//   - 24h：12 小时内为 1，之后线性衰减，24 小时为 0
//   - 7d：1 天内为 1，之后 exp(-(d-1)/3)
//   - 30d：3 天内为 1，之后 exp(-(d-3)/10)
func TimeDecay(window core.Window, age time.Duration) float64 {
	hours := int64(age / time.Hour)
	if hours < 0 {
		hours = 0
	}
	switch window {
	case core.Window24h:
		if hours <= 12 {
			return 1
		}
		return math.Max(0, 1-float64(hours-12)/12)
	case core.Window30d:
		days := float64(hours) / 24
		if days <= 3 {
			return 1
		}
		return math.Exp(-(days - 3) / 10)
	default:
		days := float64(hours) / 24
		if days <= 1 {
			return 1
		}
		return math.Exp(-(days - 1) / 3)
	}
}

// ReviewScore 是单条书评对其每个关键词的贡献：
// 时间衰减 × (1 + log10(点赞数+1)/3) × 作者相似度。
func ReviewScore(window core.Window, age time.Duration, likeCount int64, authorSimilarity float64) float64 {
	if likeCount < 0 {
		likeCount = 0
	}
	engagement := math.Log10(float64(likeCount)+1) / 3
	return TimeDecay(window, age) * (1 + engagement) * authorSimilarity
}

// topicTally 是单个关键词的累计值，只通过 add 生成新值。
type topicTally struct {
	keyword string
	count   int
	score   float64
	last    time.Time
}

func (t topicTally) add(score float64, at time.Time) topicTally {
	t.count++
	t.score += score
	if at.After(t.last) {
		t.last = at
	}
	return t
}

type topicReview struct {
	keyword  string
	reviewID int64
}

// topicFold 是按关键词下标索引的累计表。
type topicFold struct {
	index   map[string]int
	tallies []topicTally
	seen    map[topicReview]struct{}
}

func newTopicFold() *topicFold {
	return &topicFold{
		index: make(map[string]int),
		seen:  make(map[topicReview]struct{}),
	}
}

// step 把一条书评折叠进累计表；同一书评对同一关键词只计一次。
func (f *topicFold) step(r core.ReviewWithKeywords, score float64) *topicFold {
	for _, kw := range r.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		key := topicReview{keyword: kw, reviewID: r.ReviewID}
		if _, dup := f.seen[key]; dup {
			continue
		}
		f.seen[key] = struct{}{}

		i, ok := f.index[kw]
		if !ok {
			i = len(f.tallies)
			f.index[kw] = i
			f.tallies = append(f.tallies, topicTally{keyword: kw})
		}
		f.tallies[i] = f.tallies[i].add(score, r.CreatedAt)
	}
	return f
}

// AggregateTopics 汇总相似用户近期书评中的热门关键词。
//
// 作者不在 similar 中时相似度按 cfg.UnknownAuthor 计。只保留书评数 >= MinReviewCount
// 的关键词，按累计分降序（同分按关键词升序）取前 MaxTopics 个。
func AggregateTopics(
	similar []core.SimilarUser,
	reviews []core.ReviewWithKeywords,
	window core.Window,
	now time.Time,
	cfg Config,
) []core.ReviewCircleTopic {
	if len(similar) == 0 || len(reviews) == 0 {
		return []core.ReviewCircleTopic{}
	}
	cfg = cfg.withDefaults()

	sims := make(map[int64]float64, len(similar))
	for _, su := range similar {
		sims[su.UserID] = su.SimilarityScore
	}

	fold := newTopicFold()
	for _, r := range reviews {
		sim, ok := sims[r.UserID]
		if !ok {
			sim = cfg.UnknownAuthor
		}
		fold = fold.step(r, ReviewScore(window, now.Sub(r.CreatedAt), r.LikeCount, sim))
	}

	topics := make([]core.ReviewCircleTopic, 0, len(fold.tallies))
	for _, t := range fold.tallies {
		if t.count < cfg.MinReviewCount {
			continue
		}
		topics = append(topics, core.ReviewCircleTopic{
			Keyword:        t.keyword,
			ReviewCount:    t.count,
			Score:          t.score,
			LastActivityAt: t.last,
		})
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].Score != topics[j].Score {
			return topics[i].Score > topics[j].Score
		}
		return topics[i].Keyword < topics[j].Keyword
	})
	if len(topics) > cfg.MaxTopics {
		topics = topics[:cfg.MaxTopics]
	}
	return topics
}
