// Package supervisor 用 suture 托管排序核心的后台任务：
// 每日口味画像批处理与每小时书评圈话题批处理。
package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/rushteam/bookrank/pkg/logging"
)

// TreeConfig 监督树参数，零值使用 suture 默认值。
type TreeConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// DefaultTreeConfig 返回默认参数。
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

func (c TreeConfig) withDefaults() TreeConfig {
	d := DefaultTreeConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureDecay <= 0 {
		c.FailureDecay = d.FailureDecay
	}
	if c.FailureBackoff <= 0 {
		c.FailureBackoff = d.FailureBackoff
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

// Tree 是两层监督树：根节点下挂 batch 层，批处理服务崩溃只会在 batch 层内重启。
type Tree struct {
	root  *suture.Supervisor
	batch *suture.Supervisor
}

// NewTree 创建监督树，suture 事件经 slog 桥写入 zerolog。
func NewTree(logger zerolog.Logger, cfg TreeConfig) *Tree {
	cfg = cfg.withDefaults()
	hook := (&sutureslog.Handler{Logger: logging.NewSlogLogger(logger.With().Str("component", "supervisor").Logger())}).MustHook()

	spec := func(h suture.EventHook) suture.Spec {
		return suture.Spec{
			EventHook:        h,
			FailureThreshold: cfg.FailureThreshold,
			FailureDecay:     cfg.FailureDecay,
			FailureBackoff:   cfg.FailureBackoff,
			Timeout:          cfg.ShutdownTimeout,
		}
	}
	root := suture.New("bookrank", spec(hook))
	batch := suture.New("batch", spec(nil))
	root.Add(batch)
	return &Tree{root: root, batch: batch}
}

// AddBatchService 把服务加入 batch 层。
func (t *Tree) AddBatchService(svc suture.Service) suture.ServiceToken {
	return t.batch.Add(svc)
}

// Serve 阻塞运行，直到 ctx 取消。
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground 在后台运行，返回的 channel 在树停止时收到结果。
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}
