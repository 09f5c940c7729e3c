package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrUnavailable marks an audio source that cannot be read or fetched.
var ErrUnavailable = errors.New("audio source unavailable")

// DefaultName is the inferred file name when the specifier carries no path
// segment, e.g. a bare host URL.
const DefaultName = "audio"

// Audio is a resolved source: a byte stream consumed exactly once, plus the
// file name inferred from the specifier.
type Audio struct {
	Reader io.ReadCloser
	Name   string
}

// Resolve opens a readable stream for a source specifier, which is either an
// http(s) URL or a local path. No retries happen here; transport errors are
// the caller's problem.
func Resolve(ctx context.Context, specifier string, client *http.Client) (Audio, error) {
	if strings.TrimSpace(specifier) == "" {
		return Audio{}, fmt.Errorf("%w: no source given", ErrUnavailable)
	}

	if isRemote(specifier) {
		return fetchRemote(ctx, specifier, client)
	}
	return openLocal(specifier)
}

// InferName returns the last path segment of a specifier, or DefaultName
// when there is none.
func InferName(specifier string) string {
	if isRemote(specifier) {
		u, err := url.Parse(specifier)
		if err != nil {
			return DefaultName
		}
		return cleanName(path.Base(u.Path))
	}
	return cleanName(filepath.Base(filepath.Clean(specifier)))
}

func isRemote(specifier string) bool {
	return strings.HasPrefix(specifier, "http://") || strings.HasPrefix(specifier, "https://")
}

func fetchRemote(ctx context.Context, rawURL string, client *http.Client) (Audio, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Audio{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Audio{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return Audio{}, fmt.Errorf("%w: fetch %s: unexpected status %d", ErrUnavailable, rawURL, resp.StatusCode)
	}

	return Audio{Reader: resp.Body, Name: InferName(rawURL)}, nil
}

func openLocal(specifier string) (Audio, error) {
	cleaned := filepath.Clean(specifier)
	f, err := os.Open(cleaned)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Audio{}, fmt.Errorf("%w: audio file not found: %s", ErrUnavailable, cleaned)
		}
		return Audio{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return Audio{Reader: f, Name: InferName(cleaned)}, nil
}

func cleanName(base string) string {
	switch base {
	case "", ".", "/", "\\":
		return DefaultName
	}
	return base
}
