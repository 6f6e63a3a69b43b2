package bootstrap

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// fastRetry is a retry policy that keeps tests quick.
var fastRetry = RetryPolicy{
	MaxAttempts:    5,
	InitialBackoff: time.Millisecond,
	MaxBackoff:     4 * time.Millisecond,
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func testArtifact() Artifact {
	return Artifact{Repo: "org/legal-model", File: "model.gguf"}
}

func newTestHub(t *testing.T, handler http.Handler) (*hubClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return newHubClient(srv.URL, srv.Client(), nil), srv
}

func TestArtifactURL(t *testing.T) {
	h := newHubClient("https://huggingface.co/", nil, nil)

	a := Artifact{Repo: "org/repo", File: "m.gguf"}
	want := "https://huggingface.co/org/repo/resolve/main/m.gguf"
	if got := h.artifactURL(a); got != want {
		t.Errorf("artifactURL = %q, want %q", got, want)
	}

	a.Revision = "v2"
	want = "https://huggingface.co/org/repo/resolve/v2/m.gguf"
	if got := h.artifactURL(a); got != want {
		t.Errorf("artifactURL = %q, want %q", got, want)
	}
}

func TestFetchSuccess(t *testing.T) {
	content := []byte("quantized weights payload")

	hub, _ := newTestHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/org/legal-model/resolve/main/model.gguf" {
			http.NotFound(w, r)
			return
		}
		w.Write(content)
	}))

	ws := newTestWorkspace(t, Config{})
	size, err := hub.fetch(context.Background(), ws, testArtifact(), fastRetry, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if size != int64(len(content)) {
		t.Errorf("size = %d, want %d", size, len(content))
	}

	data, err := os.ReadFile(ws.artifactPath("model.gguf"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(content) {
		t.Error("downloaded content mismatch")
	}

	if _, err := os.Stat(ws.partialPath("model.gguf")); !os.IsNotExist(err) {
		t.Error("partial file should be renamed away")
	}
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	content := []byte("eventually available")
	var requests atomic.Int32

	hub, _ := newTestHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) <= 2 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		w.Write(content)
	}))

	ws := newTestWorkspace(t, Config{})
	if _, err := hub.fetch(context.Background(), ws, testArtifact(), fastRetry, nil); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := requests.Load(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestFetchBoundedRetryGivesUp(t *testing.T) {
	var requests atomic.Int32

	hub, _ := newTestHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))

	ws := newTestWorkspace(t, Config{})
	policy := RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

	_, err := hub.fetch(context.Background(), ws, testArtifact(), policy, nil)
	if !errors.Is(err, ErrNetworkError) {
		t.Fatalf("err = %v, want ErrNetworkError", err)
	}
	if !strings.Contains(err.Error(), "3 attempts") {
		t.Errorf("error should mention attempt count: %v", err)
	}
	if got := requests.Load(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestFetchUnboundedRetryKeepsGoing(t *testing.T) {
	// MaxAttempts <= 0 preserves the original script's retry-forever loop.
	content := []byte("patience pays")
	var requests atomic.Int32

	hub, _ := newTestHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) <= 8 {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		w.Write(content)
	}))

	ws := newTestWorkspace(t, Config{})
	policy := RetryPolicy{MaxAttempts: -1, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

	if _, err := hub.fetch(context.Background(), ws, testArtifact(), policy, nil); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := requests.Load(); got != 9 {
		t.Errorf("requests = %d, want 9", got)
	}
}

func TestFetchNotFoundFailsFast(t *testing.T) {
	var requests atomic.Int32

	hub, _ := newTestHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.NotFound(w, r)
	}))

	ws := newTestWorkspace(t, Config{})
	_, err := hub.fetch(context.Background(), ws, testArtifact(), fastRetry, nil)
	if !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("err = %v, want ErrArtifactNotFound", err)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("requests = %d, want 1 (no retry on 404)", got)
	}
}

func TestFetchVerifiesDigest(t *testing.T) {
	content := []byte("verified payload")

	t.Run("matching digest", func(t *testing.T) {
		hub, _ := newTestHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write(content)
		}))

		ws := newTestWorkspace(t, Config{})
		a := testArtifact()
		a.SHA256 = sha256Hex(content)

		if _, err := hub.fetch(context.Background(), ws, a, fastRetry, nil); err != nil {
			t.Fatalf("fetch: %v", err)
		}
	})

	t.Run("digest mismatch fails fast and drops the partial", func(t *testing.T) {
		var requests atomic.Int32
		hub, _ := newTestHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.Write([]byte("tampered payload"))
		}))

		ws := newTestWorkspace(t, Config{})
		a := testArtifact()
		a.SHA256 = sha256Hex(content)

		_, err := hub.fetch(context.Background(), ws, a, fastRetry, nil)
		if !errors.Is(err, ErrHashMismatch) {
			t.Fatalf("err = %v, want ErrHashMismatch", err)
		}
		if got := requests.Load(); got != 1 {
			t.Errorf("requests = %d, want 1 (no retry on corruption)", got)
		}
		if _, err := os.Stat(ws.partialPath(a.File)); !os.IsNotExist(err) {
			t.Error("corrupt partial should be removed")
		}
		if _, err := os.Stat(ws.artifactPath(a.File)); !os.IsNotExist(err) {
			t.Error("artifact must not be installed on mismatch")
		}
	})
}

func TestFetchResumesPartialDownload(t *testing.T) {
	content := []byte("0123456789abcdefghij")
	var gotRange string

	hub, _ := newTestHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		if gotRange == "" {
			w.Write(content)
			return
		}
		var offset int
		fmt.Sscanf(gotRange, "bytes=%d-", &offset)
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, len(content)-1, len(content)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(content[offset:])
	}))

	ws := newTestWorkspace(t, Config{})
	if err := ws.ensureLayout(); err != nil {
		t.Fatal(err)
	}

	// Simulate an interrupted earlier run.
	a := testArtifact()
	a.SHA256 = sha256Hex(content)
	if err := os.WriteFile(ws.partialPath(a.File), content[:8], 0644); err != nil {
		t.Fatal(err)
	}

	var sessionBytes int64
	progress := func(p FetchProgress) {
		if p.Phase == "downloading" {
			sessionBytes = p.BytesDownloaded
		}
	}

	if _, err := hub.fetch(context.Background(), ws, a, fastRetry, progress); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if gotRange != "bytes=8-" {
		t.Errorf("Range header = %q, want %q", gotRange, "bytes=8-")
	}

	data, err := os.ReadFile(ws.artifactPath(a.File))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(content) {
		t.Errorf("content = %q, want %q", data, content)
	}

	// Only the missing suffix crosses the network.
	if sessionBytes != int64(len(content)-8) {
		t.Errorf("session bytes = %d, want %d", sessionBytes, len(content)-8)
	}
}

func TestFetchRestartsWhenServerIgnoresRange(t *testing.T) {
	content := []byte("fresh full body")

	hub, _ := newTestHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Plain 200 regardless of Range: the partial is stale.
		w.Write(content)
	}))

	ws := newTestWorkspace(t, Config{})
	if err := ws.ensureLayout(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ws.partialPath("model.gguf"), []byte("old partial data"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := hub.fetch(context.Background(), ws, testArtifact(), fastRetry, nil); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	data, err := os.ReadFile(ws.artifactPath("model.gguf"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(content) {
		t.Errorf("content = %q, want %q", data, content)
	}
}

func TestFetchHonorsContextDuringBackoff(t *testing.T) {
	hub, _ := newTestHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))

	ws := newTestWorkspace(t, Config{})
	policy := RetryPolicy{MaxAttempts: -1, InitialBackoff: time.Hour, MaxBackoff: time.Hour}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := hub.fetch(ctx, ws, testArtifact(), policy, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("backoff did not honor context cancellation")
	}
}

func TestFetchReportsProgressPhases(t *testing.T) {
	content := []byte("progress payload")

	hub, _ := newTestHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))

	ws := newTestWorkspace(t, Config{})
	a := testArtifact()
	a.SHA256 = sha256Hex(content)

	var phases []string
	progress := func(p FetchProgress) {
		if len(phases) == 0 || phases[len(phases)-1] != p.Phase {
			phases = append(phases, p.Phase)
		}
	}

	if _, err := hub.fetch(context.Background(), ws, a, fastRetry, progress); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	want := []string{"resolving", "downloading", "verifying", "done"}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("phase %d = %q, want %q", i, phases[i], want[i])
		}
	}
}

func TestVerifyFileSHA256(t *testing.T) {
	path := t.TempDir() + "/f"
	content := []byte("some bytes")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}

	if err := verifyFileSHA256(path, sha256Hex(content)); err != nil {
		t.Errorf("matching digest: %v", err)
	}

	// Uppercase digests are accepted.
	if err := verifyFileSHA256(path, strings.ToUpper(sha256Hex(content))); err != nil {
		t.Errorf("uppercase digest: %v", err)
	}

	err := verifyFileSHA256(path, sha256Hex([]byte("other")))
	if !errors.Is(err, ErrHashMismatch) {
		t.Errorf("err = %v, want ErrHashMismatch", err)
	}
}
