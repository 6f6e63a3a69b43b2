package bootstrap

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	sentinels := []error{
		ErrInterpreterNotFound,
		ErrVersionUnsupported,
		ErrCommandFailed,
		ErrArtifactNotFound,
		ErrNotFetched,
		ErrAlreadyFetched,
		ErrHashMismatch,
		ErrNetworkError,
		ErrStorageError,
		ErrHubError,
		ErrInvalidConfig,
	}

	for i, a := range sentinels {
		if !strings.HasPrefix(a.Error(), "bootstrap: ") {
			t.Errorf("%v lacks package prefix", a)
		}
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Errorf("%v should not match %v", a, b)
			}
		}
	}
}

func TestErrorWrapping(t *testing.T) {
	err := fmt.Errorf("fetching model.gguf: %w", fmt.Errorf("attempt 3: %w", ErrNetworkError))

	if !errors.Is(err, ErrNetworkError) {
		t.Error("wrapped sentinel should survive errors.Is through two levels")
	}
	if errors.Is(err, ErrHubError) {
		t.Error("unrelated sentinel should not match")
	}
}
