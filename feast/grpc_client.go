package feast

import (
	"context"
	"fmt"
	"sync"
	"time"

	feastsdk "github.com/feast-dev/feast/sdk/go"

	"github.com/rushteam/bookrank/core"
)

// GrpcClient 用官方 Feast Go SDK 读取在线特征。
type GrpcClient struct {
	mu       sync.RWMutex
	sdk      *feastsdk.GrpcClient
	project  string
	timeout  time.Duration
	endpoint string
}

// NewFromConfig 连接 cfg.Host:cfg.Port（端口默认 6565）。Token 非空时使用静态凭据。
func NewFromConfig(cfg Config) (*GrpcClient, error) {
	port := cfg.Port
	if port == 0 {
		port = 6565
	}

	var (
		sdk *feastsdk.GrpcClient
		err error
	)
	if cfg.Token != "" {
		sdk, err = feastsdk.NewSecureGrpcClient(cfg.Host, port, feastsdk.SecurityConfig{
			Credential: feastsdk.NewStaticCredential(cfg.Token),
		})
	} else {
		sdk, err = feastsdk.NewGrpcClient(cfg.Host, port)
	}
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleFeature, core.ErrorCodeUnavailable,
			fmt.Sprintf("connect feast %s:%d", cfg.Host, port), err)
	}
	return &GrpcClient{
		sdk:      sdk,
		project:  cfg.Project,
		timeout:  cfg.Timeout,
		endpoint: fmt.Sprintf("%s:%d", cfg.Host, port),
	}, nil
}

func (c *GrpcClient) Endpoint() string { return c.endpoint }

func (c *GrpcClient) OnlineValues(ctx context.Context, feature, entity string, ids []int64) ([]any, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	c.mu.RLock()
	sdk := c.sdk
	c.mu.RUnlock()
	if sdk == nil {
		return nil, core.NewDomainError(core.ModuleFeature, core.ErrorCodeUnavailable, "feast client is closed")
	}

	rows := make([]feastsdk.Row, len(ids))
	for i, id := range ids {
		rows[i] = feastsdk.Row{entity: feastsdk.Int64Val(id)}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := sdk.GetOnlineFeatures(ctx, &feastsdk.OnlineFeaturesRequest{
		Features: []string{feature},
		Entities: rows,
		Project:  c.project,
	})
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleFeature, core.ErrorCodeUnavailable, "feast get online features", err)
	}

	got := resp.Rows()
	if len(got) != len(ids) {
		return nil, fmt.Errorf("feast returned %d rows for %d entities", len(got), len(ids))
	}
	out := make([]any, len(ids))
	for i, row := range got {
		if v, ok := row[feature]; ok && v != nil {
			out[i] = decodeValue(v)
		}
	}
	return out, nil
}

// Close 释放客户端引用。SDK 不暴露连接关闭，连接由 gRPC 回收。
func (c *GrpcClient) Close() error {
	c.mu.Lock()
	c.sdk = nil
	c.mu.Unlock()
	return nil
}

// decodeValue 读取 *types.Value 的 oneof：整型与浮点转为 float64，字符串原样返回，未设置为 nil。
func decodeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case interface{ GetUnixTimestampVal() int64 }:
		if ts := val.GetUnixTimestampVal(); ts != 0 {
			return float64(ts)
		}
	}
	if val, ok := v.(interface{ GetInt64Val() int64 }); ok && val.GetInt64Val() != 0 {
		return float64(val.GetInt64Val())
	}
	if val, ok := v.(interface{ GetInt32Val() int32 }); ok && val.GetInt32Val() != 0 {
		return float64(val.GetInt32Val())
	}
	if val, ok := v.(interface{ GetDoubleVal() float64 }); ok && val.GetDoubleVal() != 0 {
		return val.GetDoubleVal()
	}
	if val, ok := v.(interface{ GetStringVal() string }); ok && val.GetStringVal() != "" {
		return val.GetStringVal()
	}
	return nil
}

var _ Client = (*GrpcClient)(nil)
