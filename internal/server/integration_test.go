//go:build integration

// Integration tests against a running server: task run
//
// Run: go test -tags=integration ./internal/server/
package server_test

import (
	"encoding/json"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseURL() string {
	if u := os.Getenv("ROADRISK_BASE_URL"); u != "" {
		return u
	}
	return "http://localhost:8086"
}

func getJSON(t *testing.T, path string, out any) {
	t.Helper()
	resp, err := http.Get(baseURL() + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestHealth(t *testing.T) {
	var body struct{ Status string }
	getJSON(t, "/health", &body)
	assert.Equal(t, "ok", body.Status)
}

func TestGetInfo(t *testing.T) {
	var body struct {
		Name     string
		Segments int
	}
	getJSON(t, "/api/v1/info", &body)
	assert.Equal(t, "plat-roadrisk", body.Name)
	assert.Positive(t, body.Segments)
}

func TestListViews(t *testing.T) {
	var body []struct{ ID string }
	getJSON(t, "/api/v1/views", &body)
	assert.NotEmpty(t, body)
}
