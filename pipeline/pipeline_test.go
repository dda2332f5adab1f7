package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/bookrank/core"
)

type appendNode struct {
	name string
	kind Kind
	id   int64
	err  error
}

func (n *appendNode) Name() string { return n.name }
func (n *appendNode) Kind() Kind   { return n.kind }

func (n *appendNode) Process(_ context.Context, _ *core.RecommendContext, in []core.Candidate) ([]core.Candidate, error) {
	if n.err != nil {
		return nil, n.err
	}
	return append(in, core.NewCandidate(n.id, core.SourcePopularity, core.Float(1), "")), nil
}

func TestPipeline_Run(t *testing.T) {
	p := &Pipeline{Name: "book", Nodes: []Node{
		&appendNode{name: "a", kind: KindRecall, id: 1},
		&appendNode{name: "b", kind: KindRank, id: 2},
	}}
	out, err := p.Run(context.Background(), &core.RecommendContext{Domain: core.DomainBook}, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(2), out[1].ItemID)

	assert.Equal(t, "b", p.Stage(KindRank).Name())
	assert.Nil(t, p.Stage(KindFilter))
	assert.Equal(t, "book: a → b", p.Describe())
}

func TestPipeline_Without(t *testing.T) {
	p := &Pipeline{Name: "book", Nodes: []Node{
		&appendNode{name: "a", kind: KindRecall, id: 1},
		&appendNode{name: "b", kind: KindFilter, id: 2},
		&appendNode{name: "c", kind: KindRank, id: 3},
	}}
	tail := p.Without(KindRecall, ".fallback")
	assert.Equal(t, "book.fallback: b → c", tail.Describe())
	assert.Len(t, p.Nodes, 3)

	out, err := tail.Run(context.Background(), &core.RecommendContext{}, []core.Candidate{
		core.NewCandidate(9, core.SourcePopularity, core.Float(1), ""),
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 2, 3}, []int64{out[0].ItemID, out[1].ItemID, out[2].ItemID})
}

func TestPipeline_RunWrapsNodeError(t *testing.T) {
	boom := errors.New("boom")
	p := &Pipeline{Nodes: []Node{
		&appendNode{name: "a", kind: KindRecall, id: 1},
		&appendNode{name: "broken", kind: KindRank, err: boom},
	}}
	_, err := p.Run(context.Background(), &core.RecommendContext{}, nil)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "broken")
}

func TestPipeline_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &Pipeline{Nodes: []Node{&appendNode{name: "a", kind: KindRecall, id: 1}}}
	_, err := p.Run(ctx, &core.RecommendContext{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfig_BuildPipeline(t *testing.T) {
	f := NewNodeFactory()
	f.Register("test.append", func(cfg map[string]any) (Node, error) {
		id, _ := cfg["id"].(int)
		return &appendNode{name: "test.append", kind: KindRecall, id: int64(id)}, nil
	})

	cfg, err := ParseYAML([]byte(`
pipeline:
  name: demo
  nodes:
    - type: test.append
      config: {id: 7}
`))
	require.NoError(t, err)
	p, err := cfg.BuildPipeline(f)
	require.NoError(t, err)
	assert.Equal(t, "demo", p.Name)

	out, err := p.Run(context.Background(), &core.RecommendContext{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), out[0].ItemID)

	cfg.Pipeline.Nodes = append(cfg.Pipeline.Nodes, NodeConfig{Type: "rank.lr"})
	_, err = cfg.BuildPipeline(f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test.append")

	_, err = ParseYAML([]byte("pipeline:\n  name: empty\n"))
	assert.Error(t, err)
}
