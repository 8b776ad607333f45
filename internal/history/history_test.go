package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChromaStore_AddAndQuery(t *testing.T) {
	var gotAdd addRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/add":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotAdd))
			w.Write([]byte(`{"status":"ok"}`))
		case "/query":
			var q queryRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
			assert.Equal(t, "failed logins from 10.0.0.5", q.QueryText)
			assert.Equal(t, 5, q.K)
			w.Write([]byte(`{"items":[{"id":"case_1","document":"brute force","score":0.91,"metadata":{"entity":"10.0.0.5","mitigation":"temp_block"}}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	s := NewChromaStore(srv.URL)
	ctx := context.Background()

	c := Case{
		ID:   NewCaseID("10.0.0.5", time.Now()),
		Text: "brute force against /auth/login",
		Meta: CaseMeta{EntityType: "ip", Entity: "10.0.0.5", Mitigation: "temp_block", Outcome: "pending"},
	}
	require.NoError(t, s.Add(ctx, c))
	assert.Equal(t, c.ID, gotAdd.ID)
	assert.Equal(t, "brute force against /auth/login", gotAdd.Document)
	assert.Equal(t, "pending", gotAdd.Metadata.Outcome)

	results, err := s.Query(ctx, "failed logins from 10.0.0.5", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "case_1", results[0].ID)
	assert.Equal(t, 0.91, results[0].Score)
	assert.Equal(t, "temp_block", results[0].Meta.Mitigation)
}

func TestChromaStore_Stats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stats", r.URL.Path)
		w.Write([]byte(`{"count":42}`))
	}))
	defer srv.Close()

	stats, err := NewChromaStore(srv.URL).Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, stats.Count)
}

func TestChromaStore_SidecarError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewChromaStore(srv.URL).Query(context.Background(), "q", 5)
	assert.ErrorContains(t, err, "status 502")
}

func TestMemoryStore_QueryRanksByOverlap(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, Case{ID: "a", Text: "brute force failed logins from 10.0.0.5", Meta: CaseMeta{Entity: "10.0.0.5"}}))
	require.NoError(t, s.Add(ctx, Case{ID: "b", Text: "sql injection in search parameter", Meta: CaseMeta{Entity: "172.16.0.9"}}))
	require.NoError(t, s.Add(ctx, Case{ID: "c", Text: "unrelated traffic spike", Meta: CaseMeta{Entity: "8.8.8.8"}}))

	results, err := s.Query(ctx, "failed logins 10.0.0.5", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ID)
	assert.LessOrEqual(t, len(results), 2)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Count)
}
