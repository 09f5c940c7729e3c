package source

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveLocalFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(path, []byte("audio-bytes"), 0o644))

	audio, err := Resolve(context.Background(), path, nil)
	require.NoError(t, err)
	defer audio.Reader.Close()

	require.Equal(t, "clip.wav", audio.Name)
	content, err := io.ReadAll(audio.Reader)
	require.NoError(t, err)
	require.Equal(t, []byte("audio-bytes"), content)
}

func TestResolveMissingLocalFile(t *testing.T) {
	t.Parallel()

	_, err := Resolve(context.Background(), filepath.Join(t.TempDir(), "nope.wav"), nil)
	require.ErrorIs(t, err, ErrUnavailable)
	require.Contains(t, err.Error(), "not found")
}

func TestResolveRemoteURL(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/media/clip.wav", r.URL.Path)
		_, _ = w.Write([]byte("remote-bytes"))
	}))
	defer server.Close()

	audio, err := Resolve(context.Background(), server.URL+"/media/clip.wav", nil)
	require.NoError(t, err)
	defer audio.Reader.Close()

	require.Equal(t, "clip.wav", audio.Name)
	content, err := io.ReadAll(audio.Reader)
	require.NoError(t, err)
	require.Equal(t, []byte("remote-bytes"), content)
}

func TestResolveRemoteNonOKStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := Resolve(context.Background(), server.URL+"/clip.wav", nil)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestResolveEmptySpecifier(t *testing.T) {
	t.Parallel()

	_, err := Resolve(context.Background(), "  ", nil)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestInferName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		specifier string
		want      string
	}{
		{"remote with file", "https://cdn.example.com/calls/clip.wav", "clip.wav"},
		{"remote with query", "https://cdn.example.com/clip.wav?token=abc", "clip.wav"},
		{"remote bare host", "https://cdn.example.com", DefaultName},
		{"remote trailing slash", "https://cdn.example.com/", DefaultName},
		{"local relative", "recordings/clip.wav", "clip.wav"},
		{"local absolute", "/var/data/clip.wav", "clip.wav"},
		{"local bare name", "clip.wav", "clip.wav"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, InferName(tt.specifier))
		})
	}
}
