package bootstrap

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Concurrency constants for artifact downloads.
const (
	// DefaultConcurrency is the default number of artifacts fetched in parallel.
	DefaultConcurrency = 2

	// MaxConcurrency is the maximum allowed parallel artifact downloads.
	MaxConcurrency = 8
)

// hubClient downloads artifact files from a Hugging Face style hub.
type hubClient struct {
	// baseURL is the hub base URL (e.g. "https://huggingface.co").
	baseURL string

	// httpClient is used for all HTTP requests.
	httpClient HTTPClient

	// logger receives diagnostic messages. May be nil.
	logger Logger
}

// newHubClient creates a new hub client.
// The baseURL is normalized by removing any trailing slashes.
func newHubClient(baseURL string, client HTTPClient, logger Logger) *hubClient {
	return &hubClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		logger:     logger,
	}
}

// artifactURL builds the resolve URL for an artifact:
// <base>/<repo>/resolve/<revision>/<file>
func (h *hubClient) artifactURL(a Artifact) string {
	return h.baseURL + "/" + a.Repo + "/resolve/" + a.rev() + "/" + a.File
}

// fetch downloads an artifact into the workspace, retrying transient
// failures according to the policy. The download streams into a .part file
// that is resumed across attempts (and across separate bootstrap runs) and
// atomically renamed into place once verified.
//
// Returns the final size of the artifact on disk.
func (h *hubClient) fetch(ctx context.Context, ws workspaceInterface, a Artifact, policy RetryPolicy, progressFn func(FetchProgress)) (int64, error) {
	if policy.isZero() {
		policy = DefaultRetryPolicy()
	}

	partPath := ws.partialPath(a.File)
	if err := ws.ensureDir(ws.modelsDir()); err != nil {
		return 0, err
	}

	if progressFn != nil {
		progressFn(FetchProgress{File: a.File, Phase: "resolving"})
	}

	backoff := policy.InitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var sessionBytes int64 // network bytes across all attempts
	for attempt := 1; ; attempt++ {
		err := h.fetchOnce(ctx, a, partPath, attempt, &sessionBytes, progressFn)
		if err == nil {
			break
		}

		if !errors.Is(err, ErrNetworkError) {
			return 0, err
		}
		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
			return 0, fmt.Errorf("fetching %s: giving up after %d attempts: %w", a.File, attempt, err)
		}

		if h.logger != nil {
			h.logger.Warn("download failed, retrying",
				"file", a.File, "attempt", attempt, "backoff", backoff.String(), "error", err)
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if policy.MaxBackoff > 0 && backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}

	if a.SHA256 != "" {
		if progressFn != nil {
			progressFn(FetchProgress{File: a.File, Phase: "verifying"})
		}
		if err := verifyFileSHA256(partPath, a.SHA256); err != nil {
			os.Remove(partPath) // corrupt, not worth resuming
			return 0, fmt.Errorf("artifact %s: %w", a.File, err)
		}
	}

	info, err := os.Stat(partPath)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageError, err)
	}
	size := info.Size()

	if err := os.Rename(partPath, ws.artifactPath(a.File)); err != nil {
		return 0, fmt.Errorf("%w: renaming %s: %v", ErrStorageError, partPath, err)
	}

	if progressFn != nil {
		progressFn(FetchProgress{File: a.File, Phase: "done", BytesTotal: size, BytesCompleted: size})
	}

	return size, nil
}

// fetchOnce performs a single download attempt, resuming from any existing
// partial file via a Range request. Transient failures are reported wrapping
// ErrNetworkError so the caller's retry policy applies; everything else
// fails fast.
func (h *hubClient) fetchOnce(ctx context.Context, a Artifact, partPath string, attempt int, sessionBytes *int64, progressFn func(FetchProgress)) error {
	var offset int64
	if info, err := os.Stat(partPath); err == nil {
		offset = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.artifactURL(a), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %v: %w", a.File, err, ErrNetworkError)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Full body; any partial data is stale.
		offset = 0
	case resp.StatusCode == http.StatusPartialContent:
		// Resuming from offset.
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("artifact %s: %w", a, ErrArtifactNotFound)
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		// Partial no longer matches the remote file; start over.
		os.Remove(partPath)
		return fmt.Errorf("fetching %s: stale partial download: %w", a.File, ErrNetworkError)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("fetching %s: status %d: %w", a.File, resp.StatusCode, ErrNetworkError)
	default:
		return fmt.Errorf("fetching %s: status %d: %w", a.File, resp.StatusCode, ErrHubError)
	}

	total := offset
	if resp.ContentLength >= 0 {
		total = offset + resp.ContentLength
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(partPath, flags, 0644)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", ErrStorageError, partPath, err)
	}

	completed := offset
	var reader io.Reader = resp.Body
	if progressFn != nil {
		progressFn(FetchProgress{
			File: a.File, Phase: "downloading",
			BytesTotal: total, BytesCompleted: completed,
			BytesDownloaded: *sessionBytes, Attempt: attempt,
		})
		reader = &progressReader{reader: resp.Body, onProgress: func(delta int64) {
			completed += delta
			*sessionBytes += delta
			progressFn(FetchProgress{
				File: a.File, Phase: "downloading",
				BytesTotal: total, BytesCompleted: completed,
				BytesDownloaded: *sessionBytes, Attempt: attempt,
			})
		}}
	}

	_, copyErr := io.Copy(out, reader)
	closeErr := out.Close()

	if copyErr != nil {
		// Keep the partial; the next attempt resumes from it.
		return fmt.Errorf("reading %s: %v: %w", a.File, copyErr, ErrNetworkError)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: closing %s: %v", ErrStorageError, partPath, closeErr)
	}

	if resp.ContentLength >= 0 && completed != total {
		return fmt.Errorf("fetching %s: short body (%d of %d bytes): %w", a.File, completed, total, ErrNetworkError)
	}

	return nil
}

// verifyFileSHA256 streams a file through SHA-256 and compares the digest to
// expectedHash (lowercase hex). Returns ErrHashMismatch on failure.
func verifyFileSHA256(path, expectedHash string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageError, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageError, err)
	}

	actual := hex.EncodeToString(h.Sum(nil))
	if actual != strings.ToLower(expectedHash) {
		return fmt.Errorf("got %s, want %s: %w", actual, expectedHash, ErrHashMismatch)
	}
	return nil
}

// progressReader wraps an io.Reader and reports progress as bytes are read.
type progressReader struct {
	reader     io.Reader
	onProgress func(delta int64)
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 && pr.onProgress != nil {
		pr.onProgress(int64(n))
	}
	return
}
