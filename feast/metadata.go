package feast

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/bookrank/core"
)

// MetadataProvider 按业务域批量读取物品的时间元数据（书籍出版时间 / 书评发表时间）。
type MetadataProvider struct {
	Client        Client
	BookFeature   string
	ReviewFeature string
	BatchSize     int // 默认 200
}

// NewMetadataProvider 用配置中的特征名创建 provider。
func NewMetadataProvider(client Client, cfg Config) *MetadataProvider {
	return &MetadataProvider{
		Client:        client,
		BookFeature:   cfg.BookFeature,
		ReviewFeature: cfg.ReviewFeature,
		BatchSize:     cfg.BatchSize,
	}
}

// PublishedAt 返回 itemID -> 时间。没有值或无法解析的物品不出现在结果中。
// 任一批次失败时整体返回错误。
func (p *MetadataProvider) PublishedAt(ctx context.Context, domain core.Domain, itemIDs []int64) (map[int64]time.Time, error) {
	out := make(map[int64]time.Time, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}
	feature, entity := p.BookFeature, "book_id"
	if domain == core.DomainReview {
		feature, entity = p.ReviewFeature, "review_id"
	}
	if feature == "" {
		return nil, core.NewDomainError(core.ModuleFeature, core.ErrorCodeNotSupported,
			fmt.Sprintf("no metadata feature configured for %s", domain))
	}

	size := p.BatchSize
	if size <= 0 {
		size = 200
	}
	var mu sync.Mutex
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(4)
	for start := 0; start < len(itemIDs); start += size {
		batch := itemIDs[start:min(start+size, len(itemIDs))]
		eg.Go(func() error {
			values, err := p.Client.OnlineValues(gctx, feature, entity, batch)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for i, v := range values {
				if i >= len(batch) {
					break
				}
				if t, ok := ParseTime(v); ok {
					out[batch[i]] = t
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseTime 解析 unix 秒（数值或数字字符串）或 RFC3339 字符串。
func ParseTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case float64:
		if val <= 0 {
			return time.Time{}, false
		}
		return time.Unix(int64(val), 0).UTC(), true
	case int64:
		if val <= 0 {
			return time.Time{}, false
		}
		return time.Unix(val, 0).UTC(), true
	case string:
		if t, err := time.Parse(time.RFC3339, val); err == nil {
			return t, true
		}
		if sec, err := strconv.ParseInt(val, 10, 64); err == nil && sec > 0 {
			return time.Unix(sec, 0).UTC(), true
		}
	}
	return time.Time{}, false
}
