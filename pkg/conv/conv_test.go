package conv

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
)

func TestToFloat64(t *testing.T) {
	cases := []struct {
		in   any
		want float64
		ok   bool
	}{
		{1200, 1200, true},
		{int64(7), 7, true},
		{0.25, 0.25, true},
		{json.Number("42.5"), 42.5, true},
		{" 30 ", 30, true},
		{"abc", 0, false},
		{nil, 0, false},
		{true, 0, false},
	}
	for _, c := range cases {
		got, ok := ToFloat64(c.in)
		assert.Equal(t, c.ok, ok, "%v", c.in)
		assert.InDelta(t, c.want, got, 1e-12, "%v", c.in)
	}
}

func TestToInt64(t *testing.T) {
	n, ok := ToInt64("123")
	assert.True(t, ok)
	assert.Equal(t, int64(123), n)

	n, ok = ToInt64(9.9)
	assert.True(t, ok)
	assert.Equal(t, int64(9), n)

	_, ok = ToInt64("book:12")
	assert.False(t, ok)
}

func TestParams(t *testing.T) {
	p := Params{
		"sources":    []any{"genre", 7, struct{}{}},
		"ids":        []any{1, "2", 3.0, "x"},
		"timeout_ms": 250,
		"ttl_s":      "60",
		"strict":     "true",
		"weights":    map[string]any{"graph": 0.4, "semantic": 1, "bad": "?"},
		"expr":       "candidate.score > 0",
	}

	assert.Equal(t, []string{"genre", "7"}, p.Strings("sources"))
	assert.Equal(t, []int64{1, 2, 3}, p.Int64s("ids"))
	assert.Equal(t, 250*time.Millisecond, p.Millis("timeout_ms", time.Second))
	assert.Equal(t, time.Minute, p.Seconds("ttl_s", time.Hour))
	assert.True(t, p.Bool("strict", false))
	assert.Equal(t, map[string]float64{"graph": 0.4, "semantic": 1}, p.Float64Map("weights"))
	assert.Equal(t, "candidate.score > 0", p.String("expr", ""))

	assert.Equal(t, 5, p.Int("missing", 5))
	assert.Equal(t, time.Second, p.Millis("missing", time.Second))
	assert.Nil(t, p.Float64Map("missing"))
	assert.Nil(t, Params(nil).Strings("sources"))
}
