package upstash

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// commandServer records each decoded command array and replies with the
// scripted result for it.
type commandServer struct {
	commands [][]string
	results  []string
}

func (s *commandServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var payload struct {
			Command []string `json:"command"`
		}
		require.NoError(t, json.Unmarshal(body, &payload))
		s.commands = append(s.commands, payload.Command)

		result := `"OK"`
		if len(s.results) > 0 {
			result = s.results[0]
			s.results = s.results[1:]
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":` + result + `}`))
	}
}

func newTestClient(t *testing.T, srv *commandServer) (*Client, *httptest.Server) {
	ts := httptest.NewServer(srv.handler(t))
	t.Cleanup(ts.Close)
	return NewClient(ts.URL, "test-token"), ts
}

func TestClient_SetEncodesTTLAsEXSeconds(t *testing.T) {
	srv := &commandServer{}
	client, _ := newTestClient(t, srv)

	require.NoError(t, client.Set(context.Background(), "queue:job:1", `{"id":"1"}`, 90*time.Second))
	require.NoError(t, client.Set(context.Background(), "queue:job:2", "v", 0))

	require.Len(t, srv.commands, 2)
	assert.Equal(t, []string{"SET", "queue:job:1", `{"id":"1"}`, "EX", "90"}, srv.commands[0])
	assert.Equal(t, []string{"SET", "queue:job:2", "v"}, srv.commands[1], "no EX without a ttl")
}

func TestClient_GetDistinguishesMissingFromEmpty(t *testing.T) {
	srv := &commandServer{results: []string{`"hello"`, `null`, `""`}}
	client, _ := newTestClient(t, srv)
	ctx := context.Background()

	value, ok, err := client.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello", value)

	_, ok, err = client.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	value, ok, err = client.Get(ctx, "empty")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, value)
}

func TestClient_ZCommandsEncodeScoresAsStrings(t *testing.T) {
	srv := &commandServer{results: []string{`1`, `["job-1","job-2"]`, `1`}}
	client, _ := newTestClient(t, srv)
	ctx := context.Background()

	require.NoError(t, client.ZAdd(ctx, "queue:pending", 1735689600000, "job-1"))

	members, err := client.ZRange(ctx, "queue:pending", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-1", "job-2"}, members)

	require.NoError(t, client.ZRem(ctx, "queue:pending", "job-1"))

	require.Len(t, srv.commands, 3)
	assert.Equal(t, []string{"ZADD", "queue:pending", "1735689600000", "job-1"}, srv.commands[0])
	assert.Equal(t, []string{"ZRANGE", "queue:pending", "0", "-1"}, srv.commands[1])
	assert.Equal(t, []string{"ZREM", "queue:pending", "job-1"}, srv.commands[2])
}

func TestClient_IncrParsesCount(t *testing.T) {
	srv := &commandServer{results: []string{`7`}}
	client, _ := newTestClient(t, srv)

	count, err := client.Incr(context.Background(), "rate:user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
}

func TestClient_HGetAllDecodesFlatArray(t *testing.T) {
	srv := &commandServer{results: []string{`["status","ready","plan","pro"]`, `[]`}}
	client, _ := newTestClient(t, srv)
	ctx := context.Background()

	hash, err := client.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"status": "ready", "plan": "pro"}, hash)

	hash, err = client.HGetAll(ctx, "absent")
	require.NoError(t, err)
	assert.Nil(t, hash)
}

func TestClient_SurfacesProtocolError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"WRONGTYPE Operation against a key holding the wrong kind of value"}`))
	}))
	t.Cleanup(ts.Close)
	client := NewClient(ts.URL, "test-token")

	_, _, err := client.Get(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WRONGTYPE")
}

func TestClient_SurfacesHTTPFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	t.Cleanup(ts.Close)
	client := NewClient(ts.URL, "bad-token")

	err := client.Set(context.Background(), "k", "v", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
