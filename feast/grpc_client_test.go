package feast

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	feastsdk "github.com/feast-dev/feast/sdk/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/bookrank/core"
)

func TestGrpcClient_OnlineValues(t *testing.T) {
	host := os.Getenv("FEAST_HOST")
	if host == "" {
		t.Skip("FEAST_HOST not set")
	}
	cfg := DefaultConfig()
	cfg.Host, cfg.Project = host, os.Getenv("FEAST_PROJECT")
	client, err := NewFromConfig(cfg)
	require.NoError(t, err)
	defer client.Close()

	values, err := client.OnlineValues(context.Background(), cfg.BookFeature, "book_id", []int64{1})
	require.NoError(t, err)
	assert.Len(t, values, 1)
}

func TestGrpcClient_ClosedIsUnavailable(t *testing.T) {
	c := &GrpcClient{}
	_, err := c.OnlineValues(context.Background(), "f", "book_id", []int64{1})
	assert.True(t, core.IsUnavailable(err))

	values, err := c.OnlineValues(context.Background(), "f", "book_id", nil)
	require.NoError(t, err)
	assert.Nil(t, values)
}

func TestDecodeValue(t *testing.T) {
	assert.Equal(t, float64(42), decodeValue(feastsdk.Int64Val(42)))
	assert.Equal(t, 1.5, decodeValue(feastsdk.DoubleVal(1.5)))
	assert.Equal(t, "2024-01-02T03:04:05Z", decodeValue(feastsdk.StrVal("2024-01-02T03:04:05Z")))
	assert.Nil(t, decodeValue(nil))
}

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	got, ok := ParseTime(float64(want.Unix()))
	require.True(t, ok)
	assert.True(t, want.Equal(got))

	got, ok = ParseTime("2024-01-02T03:04:05Z")
	require.True(t, ok)
	assert.True(t, want.Equal(got))

	got, ok = ParseTime("1704164645")
	require.True(t, ok)
	assert.True(t, want.Equal(got))

	_, ok = ParseTime("yesterday")
	assert.False(t, ok)
	_, ok = ParseTime(nil)
	assert.False(t, ok)
}

type staticClient struct {
	mu      sync.Mutex
	values  map[int64]any
	calls   [][]int64
	feature string
	entity  string
	err     error
}

func (c *staticClient) OnlineValues(_ context.Context, feature, entity string, ids []int64) ([]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, ids)
	c.feature, c.entity = feature, entity
	if c.err != nil {
		return nil, c.err
	}
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = c.values[id]
	}
	return out, nil
}

func (c *staticClient) Close() error { return nil }

func TestMetadataProvider(t *testing.T) {
	client := &staticClient{values: map[int64]any{1: float64(1704164645), 3: "2024-01-02T03:04:05Z"}}
	p := NewMetadataProvider(client, DefaultConfig())

	got, err := p.PublishedAt(context.Background(), core.DomainReview, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, int64(1))
	assert.Contains(t, got, int64(3))
	assert.Equal(t, "review_meta:created_at", client.feature)
	assert.Equal(t, "review_id", client.entity)
}

func TestMetadataProvider_Batches(t *testing.T) {
	client := &staticClient{values: map[int64]any{5: float64(1704164645)}}
	p := &MetadataProvider{Client: client, BookFeature: "book_meta:published_at", BatchSize: 2}

	got, err := p.PublishedAt(context.Background(), core.DomainBook, []int64{1, 2, 3, 4, 5})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Len(t, client.calls, 3)
	assert.Equal(t, "book_id", client.entity)
}

func TestMetadataProvider_Errors(t *testing.T) {
	p := &MetadataProvider{Client: &staticClient{}}
	_, err := p.PublishedAt(context.Background(), core.DomainBook, []int64{1})
	assert.True(t, core.IsNotSupported(err))

	boom := errors.New("boom")
	p = &MetadataProvider{Client: &staticClient{err: boom}, BookFeature: "f"}
	_, err = p.PublishedAt(context.Background(), core.DomainBook, []int64{1})
	assert.ErrorIs(t, err, boom)

	got, err := p.PublishedAt(context.Background(), core.DomainBook, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
