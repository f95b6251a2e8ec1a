package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
)

func fastRetry() kberrors.RetryConfig {
	return kberrors.RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		MaxElapsed:   time.Second,
		Multiplier:   2,
	}
}

// fakeOllama answers /api/embed with 3-dim vectors and /api/tags with one model.
func fakeOllama(t *testing.T, failFirst int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"nomic-embed-text:latest"}]}`))
		case "/api/embed":
			n := calls.Add(1)
			if n <= failFirst {
				http.Error(w, "loading model", http.StatusServiceUnavailable)
				return
			}
			var req ollamaEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			count := 1
			if list, ok := req.Input.([]any); ok {
				count = len(list)
			}
			resp := ollamaEmbedResponse{}
			for i := 0; i < count; i++ {
				resp.Embeddings = append(resp.Embeddings, []float64{3, 4, 0})
			}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestOllamaEmbedder_DetectsDimensionsAndNormalizes(t *testing.T) {
	srv, _ := fakeOllama(t, 0)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Retry: fastRetry()})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, 3, e.Dimensions())
	v, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.True(t, e.Available(context.Background()))
}

func TestOllamaEmbedder_RetriesServerErrors(t *testing.T) {
	srv, calls := fakeOllama(t, 2)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host: srv.URL, Dimensions: 3, Retry: fastRetry(), SkipHealthCheck: true,
	})
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOllamaEmbedder_BatchesRequests(t *testing.T) {
	srv, calls := fakeOllama(t, 0)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host: srv.URL, Dimensions: 3, BatchSize: 2, Retry: fastRetry(), SkipHealthCheck: true,
	})
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Len(t, vecs, 5)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOllamaEmbedder_UnreachableIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := srv.URL
	srv.Close()

	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host: host, Retry: fastRetry(), Timeout: time.Second,
	})
	require.Error(t, err)
	assert.Equal(t, kberrors.CategoryNetwork, kberrors.GetCategory(err))
}

func TestOllamaEmbedder_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host: srv.URL, Dimensions: 3, Retry: fastRetry(), SkipHealthCheck: true,
	})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, e.Available(context.Background()))
}
