// Package feast 通过 Feast 在线特征服务读取书籍/书评的元数据（出版时间、发表时间）。
package feast

import (
	"context"
	"time"
)

// Client 按实体 ID 读取单个在线特征。
type Client interface {
	// OnlineValues 返回值与 ids 一一对应：数值为 float64，字符串保持 string，缺失为 nil。
	// entity 是实体列名，例如 book_id。
	OnlineValues(ctx context.Context, feature, entity string, ids []int64) ([]any, error)
	Close() error
}

// Config 是 Feast 连接与特征命名配置。
type Config struct {
	Enabled bool          `koanf:"enabled"`
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"gte=0,lte=65535"`
	Project string        `koanf:"project"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout"`

	// BookFeature 书籍出版时间特征，值为 unix 秒或 RFC3339 字符串
	BookFeature string `koanf:"book_feature"`
	// ReviewFeature 书评发表时间特征
	ReviewFeature string `koanf:"review_feature"`
	// BatchSize 单次请求的最大实体数
	BatchSize int `koanf:"batch_size" validate:"gte=0"`
}

// DefaultConfig 返回默认配置（默认关闭）。
func DefaultConfig() Config {
	return Config{
		Host:          "localhost",
		Port:          6565,
		Timeout:       500 * time.Millisecond,
		BookFeature:   "book_meta:published_at",
		ReviewFeature: "review_meta:created_at",
		BatchSize:     200,
	}
}
