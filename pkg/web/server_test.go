package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct{}

func (fakeProvider) Status() any {
	return map[string]int{"frames": 42}
}

func (fakeProvider) Settings() any {
	return map[string]string{"backend": "headless"}
}

func get(t *testing.T, s *Server, path string) (int, map[string]any) {
	t.Helper()
	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out), "body: %s", body)
	return resp.StatusCode, out
}

func TestServer_Status(t *testing.T) {
	s := NewServer(":0", fakeProvider{}, nil)

	code, body := get(t, s, "/api/status")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(42), body["frames"])

	code, body = get(t, s, "/api/config")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "headless", body["backend"])

	code, body = get(t, s, "/api/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
}

func TestServer_NoProvider(t *testing.T) {
	s := NewServer(":0", nil, nil)

	code, body := get(t, s, "/api/status")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body["error"], "not available")
}

func TestServer_StartAsyncAndShutdown(t *testing.T) {
	s := NewServer("127.0.0.1:0", fakeProvider{}, nil)
	require.NoError(t, s.StartAsync())
	assert.NoError(t, s.Shutdown())
}

func TestServer_BindError(t *testing.T) {
	s := NewServer("256.0.0.1:bad", nil, nil)
	assert.Error(t, s.StartAsync())
}
