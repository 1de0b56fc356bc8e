package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/concord/internal/model"
)

func testHTTPConfig() model.HTTPConfig {
	return model.HTTPConfig{
		Timeout:       5 * time.Second,
		UserAgent:     "Concord/0.1",
		MaxBodyBytes:  1 << 20,
		RespectRobots: true,
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_LoadTextFile(t *testing.T) {
	path := writeFile(t, "paris.txt", "Paris is the capital of France.\r\nIt has 2 million people.\r\n")

	src, err := NewLoader(testHTTPConfig(), nil).Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, KindFile, src.Kind)
	assert.Equal(t, "paris", src.Title)
	assert.Equal(t, "Paris is the capital of France.\nIt has 2 million people.\n", src.Text)
}

func TestLoader_LoadHTMLFile(t *testing.T) {
	path := writeFile(t, "page.html", "<html><body><nav>Menu</nav><main><h1>Title</h1><p>Body text.</p></main></body></html>")

	src, err := NewLoader(testHTTPConfig(), nil).Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "generic", src.Adapter)
	assert.Equal(t, "Title", src.Title)
	assert.Equal(t, "Title\nBody text.", src.Text)
}

func TestLoader_FileErrors(t *testing.T) {
	loader := NewLoader(testHTTPConfig(), nil)

	_, err := loader.Load(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)

	_, err = loader.Load(context.Background(), writeFile(t, "blank.txt", "  \n\t\n"))
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = loader.Load(context.Background(), writeFile(t, "binary.bin", "\xff\xfe\x00"))
	assert.ErrorIs(t, err, ErrNotUTF8)

	small := testHTTPConfig()
	small.MaxBodyBytes = 4
	_, err = NewLoader(small, nil).Load(context.Background(), writeFile(t, "big.txt", "more than four bytes"))
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = loader.Load(context.Background(), t.TempDir())
	assert.Error(t, err)
}

func TestLoader_FromReader(t *testing.T) {
	loader := NewLoader(testHTTPConfig(), nil)

	src, err := loader.FromReader("stdin", strings.NewReader("\ufeffPiped text."))
	require.NoError(t, err)
	assert.Equal(t, KindText, src.Kind)
	assert.Equal(t, "Piped text.", src.Text)
}

func TestLoader_LoadURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			_, _ = fmt.Fprint(w, "User-agent: *\nDisallow: /secret\n")
		case "/wiki/Paris":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = fmt.Fprint(w, "<html><head><title>Paris</title></head><body><article><p>Paris is the capital of France.</p></article></body></html>")
		case "/notes.txt":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = fmt.Fprint(w, "Plain notes.")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	loader := NewLoader(testHTTPConfig(), nil)

	src, err := loader.Load(context.Background(), server.URL+"/wiki/Paris")
	require.NoError(t, err)
	assert.Equal(t, KindURL, src.Kind)
	assert.Equal(t, "generic", src.Adapter)
	assert.Equal(t, "Paris is the capital of France.", src.Text)
	assert.Equal(t, "Paris", src.Title)

	src, err = loader.Load(context.Background(), server.URL+"/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "Plain notes.", src.Text)
	assert.Equal(t, "notes", src.Title)

	_, err = loader.Load(context.Background(), server.URL+"/secret/page")
	assert.True(t, errors.Is(err, ErrDisallowed), "got %v", err)
}

func TestLoader_RobotsIgnoredWhenDisabled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = fmt.Fprint(w, "User-agent: *\nDisallow: /\n")
			return
		}
		_, _ = fmt.Fprint(w, "Allowed anyway.")
	}))
	defer server.Close()

	cfg := testHTTPConfig()
	cfg.RespectRobots = false

	src, err := NewLoader(cfg, nil).Load(context.Background(), server.URL+"/doc")
	require.NoError(t, err)
	assert.Equal(t, "Allowed anyway.", src.Text)
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com"))
	assert.True(t, IsURL("HTTP://EXAMPLE.COM"))
	assert.False(t, IsURL("docs/http-notes.txt"))
	assert.False(t, IsURL("ftp://example.com/file"))
}
