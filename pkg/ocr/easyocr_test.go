package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, fragments []string, warmups *atomic.Int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/warmup", func(w http.ResponseWriter, r *http.Request) {
		if warmups != nil {
			warmups.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/read", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(readResponse{Fragments: fragments})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestExtractURLJoinsFragments(t *testing.T) {
	srv := newTestServer(t, []string{"比特币", "创新高"}, nil)
	c := NewEasyOCRClient(srv.URL, 5*time.Second, zap.NewNop())

	text, err := c.ExtractURL(context.Background(), "https://x.com/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "比特币创新高", text)
}

func TestExtractBytes(t *testing.T) {
	srv := newTestServer(t, []string{"hello"}, nil)
	c := NewEasyOCRClient(srv.URL, 5*time.Second, zap.NewNop())

	text, err := c.ExtractBytes(context.Background(), []byte{0xff, 0xd8})
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestWarmupHappensOnce(t *testing.T) {
	var warmups atomic.Int64
	srv := newTestServer(t, nil, &warmups)
	c := NewEasyOCRClient(srv.URL, 5*time.Second, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.ExtractURL(context.Background(), "https://x.com/a.png")
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), warmups.Load())
}

func TestUnreachableServiceReturnsError(t *testing.T) {
	c := NewEasyOCRClient("http://127.0.0.1:1", 200*time.Millisecond, zap.NewNop())

	_, err := c.ExtractURL(context.Background(), "https://x.com/a.jpg")
	assert.Error(t, err)
}

func TestServiceErrorStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/warmup", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/read", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine busy", http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewEasyOCRClient(srv.URL, 5*time.Second, zap.NewNop())
	_, err := c.ExtractURL(context.Background(), "https://x.com/a.jpg")
	assert.Error(t, err)
}
