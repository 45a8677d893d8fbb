package perception

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "facegate/pkg/domain-errors"
)

func TestHTTPClient_Extract(t *testing.T) {
	t.Run("decodes extraction", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/extract", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)

			var req extractRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			raw, err := base64.StdEncoding.DecodeString(req.Image)
			require.NoError(t, err)
			assert.Equal(t, "jpeg-bytes", string(raw))

			_ = json.NewEncoder(w).Encode(map[string]any{
				"embedding": []float64{0.6, 0.8},
				"liveness":  map[string]any{"blink_count": 2, "landmark_count": 68},
				"anti_spoof": map[string]any{
					"spoof_probability": 0.05,
				},
				"model_id": "arcface-r100",
			})
		}))
		defer server.Close()

		client, err := NewHTTPClient(server.URL + "/")
		require.NoError(t, err)
		out, err := client.Extract(context.Background(), Capture{Image: []byte("jpeg-bytes"), ContentType: "image/jpeg"})
		require.NoError(t, err)
		assert.Equal(t, []float64{0.6, 0.8}, out.Embedding)
		assert.Equal(t, 2, out.Liveness.BlinkCount)
		assert.Equal(t, 68, out.Liveness.LandmarkCount)
		assert.Equal(t, 0.05, out.AntiSpoof.SpoofProbability)
		assert.Equal(t, "arcface-r100", out.ModelID)
	})

	t.Run("non-200 is an external provider error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "no face found", http.StatusUnprocessableEntity)
		}))
		defer server.Close()

		client, err := NewHTTPClient(server.URL)
		require.NoError(t, err)
		_, err = client.Extract(context.Background(), Capture{Image: []byte("x")})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeExternalProvider))
		assert.Contains(t, err.Error(), "no face found")
	})

	t.Run("missing embedding is rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"model_id": "x"})
		}))
		defer server.Close()

		client, err := NewHTTPClient(server.URL)
		require.NoError(t, err)
		_, err = client.Extract(context.Background(), Capture{Image: []byte("x")})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeExternalProvider))
	})

	t.Run("empty image never leaves the process", func(t *testing.T) {
		client, err := NewHTTPClient("http://127.0.0.1:1")
		require.NoError(t, err)
		_, err = client.Extract(context.Background(), Capture{})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("honours context deadline", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer server.Close()

		client, err := NewHTTPClient(server.URL)
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err = client.Extract(ctx, Capture{Image: []byte("x")})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeExternalProvider))
	})
}

func TestHTTPClient_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewHTTPClient(server.URL)
	require.NoError(t, err)
	assert.NoError(t, client.HealthCheck(context.Background()))
}

func TestNewHTTPClientRequiresURL(t *testing.T) {
	_, err := NewHTTPClient(" ")
	assert.Error(t, err)
}
