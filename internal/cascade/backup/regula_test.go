package backup

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facegate/pkg/platform/circuit"
	"facegate/pkg/platform/sentinel"
)

func TestClient_Compare(t *testing.T) {
	t.Run("scales similarity to 0-100", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/match", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)

			var req matchRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Len(t, req.Images, 2)
			assert.Equal(t, imageTypeCapture, req.Images[0].Type)
			assert.Equal(t, imageTypeReference, req.Images[1].Type)
			capture, err := base64.StdEncoding.DecodeString(req.Images[0].Data)
			require.NoError(t, err)
			assert.Equal(t, "capture", string(capture))

			_, _ = w.Write([]byte(`{"code":0,"results":[{"firstIndex":1,"secondIndex":2,"similarity":0.93}]}`))
		}))
		defer server.Close()

		client, err := New(server.URL + "/")
		require.NoError(t, err)
		sim, err := client.Compare(context.Background(), []byte("capture"), []byte("reference"))
		require.NoError(t, err)
		assert.InDelta(t, 93.0, sim, 1e-9)
	})

	t.Run("empty results is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"code":0,"results":[]}`))
		}))
		defer server.Close()

		client, err := New(server.URL)
		require.NoError(t, err)
		_, err = client.Compare(context.Background(), []byte("a"), []byte("b"))
		assert.ErrorContains(t, err, "no comparison results")
	})

	t.Run("out of range similarity is rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"results":[{"similarity":1.7}]}`))
		}))
		defer server.Close()

		client, err := New(server.URL)
		require.NoError(t, err)
		_, err = client.Compare(context.Background(), []byte("a"), []byte("b"))
		assert.Error(t, err)
	})

	t.Run("non-200 carries status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client, err := New(server.URL)
		require.NoError(t, err)
		_, err = client.Compare(context.Background(), []byte("a"), []byte("b"))
		assert.ErrorContains(t, err, "503")
	})

	t.Run("honours context deadline", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer server.Close()

		client, err := New(server.URL)
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err = client.Compare(ctx, []byte("a"), []byte("b"))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("open breaker fails fast without calling the provider", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		breaker := circuit.New("backup", circuit.WithFailureThreshold(1), circuit.WithCooldown(time.Hour))
		client, err := New(server.URL, WithBreaker(breaker))
		require.NoError(t, err)

		_, err = client.Compare(context.Background(), []byte("a"), []byte("b"))
		require.Error(t, err)
		assert.True(t, breaker.IsOpen())

		_, err = client.Compare(context.Background(), []byte("a"), []byte("b"))
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("missing images", func(t *testing.T) {
		client, err := New("http://127.0.0.1:1")
		require.NoError(t, err)
		_, err = client.Compare(context.Background(), nil, []byte("b"))
		assert.Error(t, err)
	})
}

func TestClient_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/healthz", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := New(server.URL)
	require.NoError(t, err)
	assert.NoError(t, client.HealthCheck(context.Background()))
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}
