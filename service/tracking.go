package service

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/bookrank/cache"
	"github.com/rushteam/bookrank/core"
	"github.com/rushteam/bookrank/pkg/conv"
	"github.com/rushteam/bookrank/pkg/metrics"
)

// EventType 是实时行为事件类型。
type EventType string

const (
	EventImpression   EventType = "IMPRESSION"
	EventClick        EventType = "CLICK"
	EventDwell        EventType = "DWELL"
	EventScroll       EventType = "SCROLL"
	EventBookmark     EventType = "BOOKMARK"
	EventLike         EventType = "LIKE"
	EventFollow       EventType = "FOLLOW"
	EventReviewCreate EventType = "REVIEW_CREATE"
	EventReviewUpdate EventType = "REVIEW_UPDATE"
)

// ContentType 是事件作用的内容类型。
type ContentType string

const (
	ContentBook   ContentType = "BOOK"
	ContentReview ContentType = "REVIEW"
)

// Event 是一条实时行为事件。
type Event struct {
	UserID      *int64
	Type        EventType
	ContentType ContentType
	ContentID   int64
	// BookID 书评事件所属的书籍，书籍事件可为空
	BookID   *int64
	Metadata map[string]any // dwellMs / scrollDepthPct
	At       time.Time
}

// EventWeights 各事件对排序分的增量。
type EventWeights struct {
	Impression   float64 `koanf:"impression"`
	Click        float64 `koanf:"click"`
	DwellPerMs   float64 `koanf:"dwell_per_ms"`
	DwellCap     float64 `koanf:"dwell_cap"`
	ScrollPerPct float64 `koanf:"scroll_per_pct"`
	ScrollCap    float64 `koanf:"scroll_cap"`
	Bookmark     float64 `koanf:"bookmark"`
	Like         float64 `koanf:"like"`
	Follow       float64 `koanf:"follow"`
	ReviewCreate float64 `koanf:"review_create"`
	ReviewUpdate float64 `koanf:"review_update"`
}

// DefaultEventWeights 返回默认事件权重。
func DefaultEventWeights() EventWeights {
	return EventWeights{
		Impression:   0.05,
		Click:        0.3,
		DwellPerMs:   0.001,
		DwellCap:     1.5,
		ScrollPerPct: 0.005,
		ScrollCap:    0.5,
		Bookmark:     1.0,
		Like:         0.6,
		Follow:       0.8,
		ReviewCreate: 0.4,
		ReviewUpdate: 0.4,
	}
}

// Delta 返回事件的增量，未知事件返回 false。
func (w EventWeights) Delta(ev Event) (float64, bool) {
	switch ev.Type {
	case EventImpression:
		return w.Impression, true
	case EventClick:
		return w.Click, true
	case EventDwell:
		ms, _ := conv.ToFloat64(ev.Metadata["dwellMs"])
		return capped(ms*w.DwellPerMs, w.DwellCap), true
	case EventScroll:
		pct, _ := conv.ToFloat64(ev.Metadata["scrollDepthPct"])
		return capped(pct*w.ScrollPerPct, w.ScrollCap), true
	case EventBookmark:
		return w.Bookmark, true
	case EventLike:
		return w.Like, true
	case EventFollow:
		return w.Follow, true
	case EventReviewCreate:
		return w.ReviewCreate, true
	case EventReviewUpdate:
		return w.ReviewUpdate, true
	default:
		return 0, false
	}
}

func capped(v, ceiling float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if ceiling > 0 && v > ceiling {
		return ceiling
	}
	return v
}

// Tracker 把实时事件应用到排序缓存与会话加权。
//
//   - 书籍排序缓存已存在时原子地对对应书籍加分，不存在时不创建（等待下一次全量重算）
//   - 会话加权哈希累加增量，由下一次重算的 engagement 信号读取
//   - 没有用户或未知类型的事件被忽略；写入失败只记录日志
type Tracker struct {
	Books    *cache.RankedCache
	Sessions *cache.SessionBoosts
	Weights  EventWeights
	Logger   zerolog.Logger
}

// NewTracker 创建 Tracker。
func NewTracker(books *cache.RankedCache, sessions *cache.SessionBoosts, weights EventWeights, logger zerolog.Logger) *Tracker {
	return &Tracker{
		Books:    books,
		Sessions: sessions,
		Weights:  weights,
		Logger:   logger.With().Str("component", "tracker").Logger(),
	}
}

// Track 应用一条事件，返回是否被应用。
func (t *Tracker) Track(ctx context.Context, ev Event) bool {
	if ev.UserID == nil || ev.ContentID <= 0 {
		metrics.TrackedEvents.WithLabelValues(string(ev.Type), "ignored").Inc()
		return false
	}
	delta, ok := t.Weights.Delta(ev)
	if !ok || delta == 0 {
		metrics.TrackedEvents.WithLabelValues(string(ev.Type), "ignored").Inc()
		return false
	}
	uid := *ev.UserID

	bookID := ev.BookID
	if ev.ContentType == ContentBook || ev.ContentType == "" {
		bookID = &ev.ContentID
	}

	failed := false
	if bookID != nil {
		if err := t.bumpBook(ctx, uid, *bookID, delta); err != nil {
			failed = true
			t.Logger.Warn().Err(err).Int64("user_id", uid).Int64("book_id", *bookID).Str("event", string(ev.Type)).
				Msg("apply book score increment failed")
		}
	}
	if ev.ContentType == ContentReview && t.Sessions != nil {
		if _, err := t.Sessions.Boost(ctx, core.DomainReview, uid, ev.ContentID, delta); err != nil {
			failed = true
			t.Logger.Warn().Err(err).Int64("user_id", uid).Int64("review_id", ev.ContentID).Msg("apply review session boost failed")
		}
	}

	status := "applied"
	if failed {
		status = "error"
	}
	metrics.TrackedEvents.WithLabelValues(string(ev.Type), status).Inc()
	return !failed
}

func (t *Tracker) bumpBook(ctx context.Context, userID, bookID int64, delta float64) error {
	if t.Sessions != nil {
		if _, err := t.Sessions.Boost(ctx, core.DomainBook, userID, bookID, delta); err != nil {
			return err
		}
	}
	if t.Books == nil {
		return nil
	}
	_, _, err := t.Books.IncrementIfExists(ctx, cache.BookKey(&userID), cache.Member(core.DomainBook, bookID), delta)
	return err
}
