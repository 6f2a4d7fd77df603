package transcribe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req transcribeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://cdn.example/v1.mp4", req.VideoURL)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"transcript":"hello world"}`))
	}))
	defer srv.Close()

	text, err := NewClient(srv.URL, "key", 100).Transcribe(context.Background(), "https://cdn.example/v1.mp4")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestTranscribeUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", 100).Transcribe(context.Background(), "v.mp4")
	assert.Error(t, err)
}

func TestTranscribeNotConfigured(t *testing.T) {
	_, err := NewClient("", "", 1).Transcribe(context.Background(), "v.mp4")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
