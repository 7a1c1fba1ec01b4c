package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClient_SetsUserAgent(t *testing.T) {
	t.Parallel()

	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	client := NewHTTPClient(5 * time.Second)
	assert.Equal(t, 5*time.Second, client.Timeout)

	res, err := client.Get(server.URL)
	require.NoError(t, err)
	_ = res.Body.Close()
	assert.Equal(t, UserAgent, got)
}

func TestNewHTTPClient_KeepsCallerUserAgent(t *testing.T) {
	t.Parallel()

	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "custom/2.0")

	res, err := NewHTTPClient(5 * time.Second).Do(req)
	require.NoError(t, err)
	_ = res.Body.Close()
	assert.Equal(t, "custom/2.0", got)
	assert.Equal(t, "custom/2.0", req.Header.Get("User-Agent"))
}

func TestNewHTTPClient_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	_, err := NewHTTPClient(50 * time.Millisecond).Get(server.URL)
	assert.Error(t, err)
}
