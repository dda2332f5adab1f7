package recall

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/bookrank/core"
)

func TestRemoteSource_GenerateCandidates(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[
			{"item_id":10,"source":"NEO4J_GENRE","initial_score":0.66,"reason":"genre"},
			{"item_id":11,"source":"ELASTICSEARCH_SEMANTIC","initial_score":0.5},
			{"item_id":12,"source":"NEO4J_GENRE","initial_score":0.1}
		]}`)
	}))
	defer srv.Close()

	src := &RemoteSource{SourceName: "graph", Endpoint: srv.URL}
	got, err := src.GenerateCandidates(context.Background(), core.Int64(7), nil, 2)
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_id":7,"limit":2}`, body)

	require.Len(t, got, 2)
	assert.Equal(t, int64(10), got[0].ItemID)
	assert.Equal(t, core.SourceGraphGenre, got[0].Source)
	assert.Equal(t, core.FamilyOf(core.SourceGraphGenre), got[0].Family)
	score, ok := got[0].Score()
	assert.True(t, ok)
	assert.InDelta(t, 0.66, score, 1e-12)
	assert.Equal(t, core.SourceSemantic, got[1].Source)
}

func TestRemoteSource_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "graph down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := (&RemoteSource{SourceName: "graph", Endpoint: srv.URL}).GenerateCandidates(context.Background(), nil, nil, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=503")

	_, err = (&RemoteSource{SourceName: "graph"}).GenerateCandidates(context.Background(), nil, nil, 10)
	assert.Error(t, err)
}
