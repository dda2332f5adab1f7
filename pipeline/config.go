package pipeline

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Config 是 Pipeline 的 YAML 定义，例如：
//
//	pipeline:
//	  name: book
//	  nodes:
//	    - type: recall.aggregate
//	    - type: filter.expr
//	      config:
//	        expr: 'candidate.score >= 0.05'
//	    - type: rank.hybrid
type Config struct {
	Pipeline struct {
		Name  string       `yaml:"name"`
		Nodes []NodeConfig `yaml:"nodes"`
	} `yaml:"pipeline"`
}

// NodeConfig 是单个 Node 的配置。
type NodeConfig struct {
	Type   string         `yaml:"type"`   // recall.aggregate / filter.expr / enrich.metadata / rank.hybrid
	Config map[string]any `yaml:"config"` // Node 特定配置
}

// LoadFromYAML 从 YAML 文件加载 Pipeline 配置。
func LoadFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML 解析 YAML 内容。
func ParseYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(cfg.Pipeline.Nodes) == 0 {
		return nil, fmt.Errorf("pipeline %q has no nodes", cfg.Pipeline.Name)
	}
	return &cfg, nil
}

// BuildPipeline 根据配置构建 Pipeline。
func (c *Config) BuildPipeline(factory *NodeFactory) (*Pipeline, error) {
	if err := c.Validate(factory); err != nil {
		return nil, err
	}
	nodes := make([]Node, 0, len(c.Pipeline.Nodes))
	for _, nc := range c.Pipeline.Nodes {
		node, err := factory.Build(nc.Type, nc.Config)
		if err != nil {
			return nil, fmt.Errorf("build node %s: %w", nc.Type, err)
		}
		nodes = append(nodes, node)
	}
	return &Pipeline{Name: c.Pipeline.Name, Nodes: nodes}, nil
}

// BuilderFunc 根据配置构建 Node。
type BuilderFunc func(cfg map[string]any) (Node, error)

// NodeFactory 按类型名注册 Node 构建器。
type NodeFactory struct {
	builders map[string]BuilderFunc
}

func NewNodeFactory() *NodeFactory {
	return &NodeFactory{builders: make(map[string]BuilderFunc)}
}

// Register 注册 Node 构建器，同名覆盖。
func (f *NodeFactory) Register(nodeType string, builder BuilderFunc) {
	f.builders[nodeType] = builder
}

// Build 根据类型和配置构建 Node。
func (f *NodeFactory) Build(nodeType string, cfg map[string]any) (Node, error) {
	builder, ok := f.builders[nodeType]
	if !ok {
		return nil, fmt.Errorf("unknown node type: %s", nodeType)
	}
	return builder(cfg)
}

// Types 返回已注册的类型名（排序后）。
func (f *NodeFactory) Types() []string {
	out := make([]string, 0, len(f.builders))
	for t := range f.builders {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Validate 校验所有 Node 类型都已在 factory 中注册，错误信息附带已支持的类型列表。
func (c *Config) Validate(factory *NodeFactory) error {
	if c == nil {
		return nil
	}
	for i, nc := range c.Pipeline.Nodes {
		if nc.Type == "" {
			return fmt.Errorf("node %d has no type", i)
		}
		if _, ok := factory.builders[nc.Type]; !ok {
			return fmt.Errorf("unsupported node type %q (supported: %v)", nc.Type, factory.Types())
		}
	}
	return nil
}
