package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeTempDoc(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("fake pdf bytes"), 0o644))
	return path
}

func newParseTestClient(t *testing.T, handler http.Handler) *LlamaParseClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewLlamaParseClient("test-key",
		WithBaseURL(server.URL),
		WithPollInterval(time.Millisecond),
		WithLanguage("en"),
	)
	require.NoError(t, err)
	return client
}

func TestLlamaParseClient_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewLlamaParseClient("")
	require.Error(t, err)
}

func TestLlamaParseClient_UploadPollFetch(t *testing.T) {
	t.Parallel()

	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "en", r.FormValue("language"))

		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		require.Equal(t, "doc.pdf", header.Filename)

		json.NewEncoder(w).Encode(map[string]string{"id": "job-123"})
	})
	mux.HandleFunc("GET /job/job-123", func(w http.ResponseWriter, r *http.Request) {
		status := "PENDING"
		if polls.Add(1) >= 3 {
			status = "SUCCESS"
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "job-123", "status": status})
	})
	mux.HandleFunc("GET /job/job-123/result/json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"pages": []map[string]any{
				{"page": 1, "md": "# Title\n\nFirst page."},
				{"page": 2, "text": "Second page."},
			},
		})
	})

	client := newParseTestClient(t, mux)
	blocks, err := client.ParseFile(context.Background(), writeTempDoc(t))
	require.NoError(t, err)

	require.Len(t, blocks, 2)
	require.Contains(t, blocks[0].Text, "First page.")
	require.Equal(t, 1, blocks[0].Metadata["page"])
	require.Equal(t, "Second page.", blocks[1].Text, "text used when markdown is absent")
	require.Equal(t, 2, blocks[1].Metadata["page"])
	require.GreaterOrEqual(t, polls.Load(), int32(3))
}

func TestLlamaParseClient_JobFailureSurfaces(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "job-9"})
	})
	mux.HandleFunc("GET /job/job-9", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "job-9", "status": "ERROR"})
	})

	client := newParseTestClient(t, mux)
	_, err := client.ParseFile(context.Background(), writeTempDoc(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "ERROR")
}

func TestLlamaParseClient_UploadRejectionSurfaces(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid api key"}`, http.StatusUnauthorized)
	})

	client := newParseTestClient(t, mux)
	_, err := client.ParseFile(context.Background(), writeTempDoc(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
}

func TestLlamaParseClient_MissingPageNumbersFallBackToPosition(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "job-1"})
	})
	mux.HandleFunc("GET /job/job-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "SUCCESS"})
	})
	mux.HandleFunc("GET /job/job-1/result/json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"pages": []map[string]any{{"text": "a"}, {"text": "b"}},
		})
	})

	client := newParseTestClient(t, mux)
	blocks, err := client.ParseFile(context.Background(), writeTempDoc(t))
	require.NoError(t, err)
	require.Equal(t, 1, blocks[0].Metadata["page"])
	require.Equal(t, 2, blocks[1].Metadata["page"])
}

func TestLlamaParseClient_MissingInputFile(t *testing.T) {
	t.Parallel()

	client, err := NewLlamaParseClient("test-key")
	require.NoError(t, err)

	_, err = client.ParseFile(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"))
	require.Error(t, err)
}
