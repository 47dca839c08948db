package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClient_Get(t *testing.T) {
	var gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		w.Write([]byte("hello"))
	}))
	defer server.Close()

	client := New(Options{UserAgent: "serialarr-test"})

	body, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), body)
	require.Equal(t, "serialarr-test", gotUserAgent)
}

func TestClient_GetNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(Options{})

	_, err := client.Get(context.Background(), server.URL)
	require.Error(t, err)
	require.Contains(t, err.Error(), "503")
}

func TestClient_GetString(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	client := New(Options{})

	body, err := client.GetString(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, "<html></html>", body)
}

func TestClient_GetPacesRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := New(Options{DelaySeconds: 0.2})

	start := time.Now()
	for i := 0; i < 2; i++ {
		_, err := client.Get(context.Background(), server.URL)
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestClient_GetCanceledContext(t *testing.T) {
	client := New(Options{DelaySeconds: 10})

	ctx, cancel := context.WithCancel(context.Background())
	// First request consumes the burst token, the second waits on the limiter.
	done := make(chan error, 1)
	go func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		}))
		defer server.Close()

		if _, err := client.Get(ctx, server.URL); err != nil {
			done <- err
			return
		}
		_, err := client.Get(ctx, server.URL)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("request did not stop after cancellation")
	}
}
