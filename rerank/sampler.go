package rerank

import (
	"hash/fnv"
	"math/rand/v2"
	"time"

	"github.com/rushteam/bookrank/core"
)

// Strategy 是单个分层内的打散策略。
type Strategy string

const (
	StrategyNone    Strategy = "NONE"    // 保持原顺序
	StrategyPartial Strategy = "PARTIAL" // 前 FixedTopN 个固定，其余打散
	StrategyWindow  Strategy = "WINDOW"  // 按 FixedTopN 大小分窗口，窗口内打散
	StrategyFull    Strategy = "FULL"    // 整层打散
)

const defaultWindowSize = 8

// Tier 是一个分层：Size 个结果使用同一个策略。
// FixedTopN 对 PARTIAL 表示固定的头部数量，对 WINDOW 表示窗口大小。
type Tier struct {
	Size      int      `koanf:"size" validate:"gte=0"`
	Strategy  Strategy `koanf:"strategy" validate:"oneof=NONE PARTIAL WINDOW FULL"`
	FixedTopN int      `koanf:"fixed_top_n" validate:"gte=0"`
}

// SamplingConfig 是窗口采样配置。
type SamplingConfig struct {
	Enabled bool `koanf:"enabled"`
	Tier1   Tier `koanf:"tier1"`
	Tier2   Tier `koanf:"tier2"`
	Tier3   Tier `koanf:"tier3"`
}

// DefaultSamplingConfig：前 10 个固定前 3 名其余打散，接下来 40 个 8 个一窗打散，再 50 个整体打散。
func DefaultSamplingConfig() SamplingConfig {
	return SamplingConfig{
		Enabled: true,
		Tier1:   Tier{Size: 10, Strategy: StrategyPartial, FixedTopN: 3},
		Tier2:   Tier{Size: 40, Strategy: StrategyWindow, FixedTopN: 8},
		Tier3:   Tier{Size: 50, Strategy: StrategyFull},
	}
}

// WindowSampler 对已排序结果做分层轻度打散，用牺牲少量排序精度换取 feed 多样性。
//
// 随机种子 = fnv64a(sessionID) ^ (unixMillis / 60000)：同一会话在同一分钟内结果完全一致。
// sessionID 为空时使用当前时间作种子。超出三层之外的结果保持原顺序。
type WindowSampler struct {
	Config SamplingConfig
}

// NewWindowSampler 创建采样器。
func NewWindowSampler(cfg SamplingConfig) *WindowSampler {
	return &WindowSampler{Config: cfg}
}

// Seed 返回会话在 now 所在分钟的随机种子。
func Seed(sessionID string, now time.Time) uint64 {
	if sessionID == "" {
		return uint64(now.UnixNano())
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(sessionID))
	return h.Sum64() ^ uint64(now.UnixMilli()/60000)
}

// ApplySampling 返回打散后的新列表，名次按新顺序重新编号（保持第一项原有的起始名次）。
// 未启用或列表为空时原样返回。
func (s *WindowSampler) ApplySampling(results []core.RecommendationResult, sessionID string, now time.Time) []core.RecommendationResult {
	if !s.Config.Enabled || len(results) == 0 {
		return results
	}

	seed := Seed(sessionID, now)
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))

	out := make([]core.RecommendationResult, 0, len(results))
	pos := 0
	for _, tier := range []Tier{s.Config.Tier1, s.Config.Tier2, s.Config.Tier3} {
		if pos >= len(results) {
			break
		}
		if tier.Size <= 0 {
			continue
		}
		end := min(pos+tier.Size, len(results))
		chunk := append([]core.RecommendationResult(nil), results[pos:end]...)
		out = append(out, shuffle(chunk, tier, rng)...)
		pos = end
	}
	out = append(out, results[pos:]...)

	base := results[0].Rank - 1
	if base < 0 {
		base = 0
	}
	for i := range out {
		out[i].Rank = base + i + 1
	}
	return out
}

func shuffle(chunk []core.RecommendationResult, tier Tier, rng *rand.Rand) []core.RecommendationResult {
	switch tier.Strategy {
	case StrategyFull:
		shuffleRange(chunk, rng)
	case StrategyPartial:
		fixed := min(max(tier.FixedTopN, 0), len(chunk))
		shuffleRange(chunk[fixed:], rng)
	case StrategyWindow:
		size := tier.FixedTopN
		if size <= 0 {
			size = defaultWindowSize
		}
		for i := 0; i < len(chunk); i += size {
			shuffleRange(chunk[i:min(i+size, len(chunk))], rng)
		}
	}
	return chunk
}

func shuffleRange(s []core.RecommendationResult, rng *rand.Rand) {
	rng.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
}
