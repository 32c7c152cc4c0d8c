package main

import (
	"bytes"
	"encoding/csv"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadURLList(t *testing.T) {
	in := `# sites to check
https://example.com
Docs: https://docs.example.com/start, and https://example.com again.
not a url
http://blog.example.org/post.
`
	urls, err := readURLList(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.com",
		"https://docs.example.com/start",
		"http://blog.example.org/post",
	}, urls)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

// testEnv points configuration at a temporary cache and a fast HTTP engine.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SITECRAWL_CACHE_BACKEND", "fs")
	t.Setenv("SITECRAWL_CACHE_DIR", filepath.Join(dir, "cache"))
	t.Setenv("SITECRAWL_ENGINE", "http")
	t.Setenv("SITECRAWL_MEMORY_THRESHOLD", "0")
	t.Setenv("SITECRAWL_POLITENESS_MIN", "1ms")
	t.Setenv("SITECRAWL_POLITENESS_MAX", "2ms")
	t.Setenv("SITECRAWL_LOG_LEVEL", "error")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCrawlCommand(t *testing.T) {
	dir := testEnv(t)
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			_, _ = io.WriteString(w, `<html><head><title>Home</title></head><body>
<p>The home page of a small test site that has a handful of pages worth reading.</p>
<a href="/about">About</a></body></html>`)
		case "/about":
			_, _ = io.WriteString(w, `<html><head><title>About</title></head><body>
<p>The about page explains who runs the small test site and why it exists at all.</p></body></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer site.Close()

	csvPath := filepath.Join(dir, "out.csv")
	out, err := execute(t, "crawl", site.URL, "--max-pages", "5", "--csv", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "2/2 pages ok")

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	out, err = execute(t, "cache", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "127.0.0.1_")
	id := strings.Fields(lines[1])[0]

	out, err = execute(t, "cache", "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, `"total_pages": 2`)

	out, err = execute(t, "cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "cache cleared")

	_, err = execute(t, "cache", "show", id)
	assert.Error(t, err)
}

func TestCrawlCommand_Args(t *testing.T) {
	testEnv(t)

	_, err := execute(t, "crawl")
	assert.Error(t, err, "a URL is required")

	_, err = execute(t, "crawl", "not-a-url")
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("# nothing here\n"), 0o644))
	_, err = execute(t, "crawl", "--list", empty)
	assert.Error(t, err)
}
