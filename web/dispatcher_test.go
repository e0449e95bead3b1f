package web

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skekre98/modserver/cache"
)

func serve(t *testing.T, d *Dispatcher, req *Request) *Response {
	t.Helper()
	var got *Response
	calls := 0
	err := d.HandleRequest(context.Background(), req, func(res *Response) error {
		calls++
		got = res
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls, "send must be called exactly once")
	return got
}

func staticRoot(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return dir
}

const (
	indexHTML     = "<html><body>index</body></html>"
	notFoundHTML  = "<html><body>not found</body></html>"
	attentionHTML = "<html><body>attention</body></html>"
)

func siteCache(t *testing.T) *cache.FileCache {
	t.Helper()
	root := staticRoot(t, map[string]string{
		"index.html":         indexHTML,
		"errorNotFound.html": notFoundHTML,
		"attention.html":     attentionHTML,
		"css/site.css":       "body{}",
	})
	c := cache.New(cache.Options{Root: root, Capacity: 8})
	require.NoError(t, c.Initialize(context.Background()))
	return c
}

func TestHandleRequest_ExactRoute(t *testing.T) {
	d := NewDispatcher()
	d.Handle("/status", func(_ *Request, res *Response) {
		res.SetString("application/json", `{"status":"ok"}`)
	})

	res := serve(t, d, NewRequest(http.MethodGet, "/status"))
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, `{"status":"ok"}`, string(res.Body))
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
	assert.Equal(t, ServerName, res.Header.Get("Server"))
	assert.Equal(t, strconv.Itoa(len(`{"status":"ok"}`)), res.Header.Get("Content-Length"))
	assert.True(t, res.KeepAlive)
}

func TestHandleRequest_QueryIsSplitOff(t *testing.T) {
	d := NewDispatcher()
	var seen *Request
	d.Handle("/search", func(req *Request, res *Response) {
		seen = req
		res.SetString("text/plain", "ok")
	})

	res := serve(t, d, NewRequest(http.MethodGet, "/search?q=go&page=2"))
	assert.Equal(t, http.StatusOK, res.Status)
	require.NotNil(t, seen)
	assert.Equal(t, "/search", seen.Path)
	assert.Equal(t, "q=go&page=2", seen.Query)
}

func TestHandleRequest_LastRegistrationWins(t *testing.T) {
	d := NewDispatcher()
	d.Handle("/x", func(_ *Request, res *Response) { res.SetString("text/plain", "first") })
	d.Handle("/x", func(_ *Request, res *Response) { res.SetString("text/plain", "second") })

	assert.Equal(t, "second", string(serve(t, d, NewRequest(http.MethodGet, "/x")).Body))
}

func TestHandleRequest_NoRouteNoCache(t *testing.T) {
	d := NewDispatcher()
	for _, p := range []string{"/", "/nope", "/a/b/c", "/index.html", "/../etc/passwd", "/*"} {
		p := p
		t.Run(p, func(t *testing.T) {
			res := serve(t, d, NewRequest(http.MethodGet, p))
			assert.Equal(t, http.StatusNotFound, res.Status)
			assert.NotEmpty(t, res.Body)
			assert.Equal(t, "Error", string(res.Body))
		})
	}
}

func TestHandleRequest_TraversalGetsAttentionPage(t *testing.T) {
	c := siteCache(t)

	for _, static := range []bool{false, true} {
		opts := []DispatcherOption{WithFileCache(c)}
		if static {
			opts = append(opts, WithStaticFiles())
		}
		d := NewDispatcher(opts...)

		for _, p := range []string{"/../secret", "/css/../../index.html", "/a/../b"} {
			res := serve(t, d, NewRequest(http.MethodGet, p))
			assert.Equal(t, http.StatusNotFound, res.Status, p)
			assert.Equal(t, attentionHTML, string(res.Body), p)
			assert.NotEqual(t, notFoundHTML, string(res.Body), p)
		}
	}
}

func TestHandleRequest_TraversalWithoutAttentionPage(t *testing.T) {
	root := staticRoot(t, map[string]string{"errorNotFound.html": notFoundHTML})
	c := cache.New(cache.Options{Root: root})
	require.NoError(t, c.Initialize(context.Background()))
	d := NewDispatcher(WithFileCache(c))

	res := serve(t, d, NewRequest(http.MethodGet, "/../x"))
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, "Error", string(res.Body))
	assert.NotEqual(t, notFoundHTML, string(res.Body))
}

func TestHandleRequest_StaticFiles(t *testing.T) {
	c := siteCache(t)
	d := NewDispatcher(WithFileCache(c), WithStaticFiles())

	res := serve(t, d, NewRequest(http.MethodGet, "/index"))
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, indexHTML, string(res.Body))
	assert.Equal(t, "text/html; charset=utf-8", res.Header.Get("Content-Type"))
	assert.NotEmpty(t, res.Header.Get("Last-Modified"))

	res = serve(t, d, NewRequest(http.MethodGet, "/css/site.css?v=3"))
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "text/css; charset=utf-8", res.Header.Get("Content-Type"))

	res = serve(t, d, NewRequest(http.MethodGet, "/missing.xyz"))
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, notFoundHTML, string(res.Body))
}

func TestHandleRequest_StaticMissWithoutErrorPage(t *testing.T) {
	c := cache.New(cache.Options{Root: staticRoot(t, map[string]string{"a.txt": "a"})})
	require.NoError(t, c.Initialize(context.Background()))
	d := NewDispatcher(WithFileCache(c), WithStaticFiles())

	res := serve(t, d, NewRequest(http.MethodGet, "/b.txt"))
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, "File not found", string(res.Body))
}

func TestHandleRequest_CacheUsedOnlyOnceInitialized(t *testing.T) {
	root := staticRoot(t, map[string]string{"index.html": indexHTML})
	notDir := filepath.Join(root, "index.html")

	broken := cache.New(cache.Options{Root: notDir})
	require.Error(t, broken.Initialize(context.Background()))
	d := NewDispatcher(WithFileCache(broken), WithStaticFiles())

	res := serve(t, d, NewRequest(http.MethodGet, "/index"))
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, "Error", string(res.Body))
	assert.Zero(t, broken.Stats().Misses, "a failed cache is never consulted")

	late := cache.New(cache.Options{Root: root})
	d.SetFileCache(late)
	res = serve(t, d, NewRequest(http.MethodGet, "/index"))
	assert.Equal(t, "Error", string(res.Body))

	require.NoError(t, late.Initialize(context.Background()))
	res = serve(t, d, NewRequest(http.MethodGet, "/index"))
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, indexHTML, string(res.Body))
}

func TestHandleRequest_ExactRouteBeatsStatic(t *testing.T) {
	c := siteCache(t)
	d := NewDispatcher(WithFileCache(c), WithStaticFiles())
	d.Handle("/index", func(_ *Request, res *Response) { res.SetString("text/plain", "route") })

	assert.Equal(t, "route", string(serve(t, d, NewRequest(http.MethodGet, "/index")).Body))
}

func TestHandleRequest_CacheWithoutWildcardDoesNotServeFiles(t *testing.T) {
	c := siteCache(t)
	d := NewDispatcher(WithFileCache(c))

	res := serve(t, d, NewRequest(http.MethodGet, "/index"))
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, notFoundHTML, string(res.Body))
}

func TestHandleRequest_WildcardWithoutCache(t *testing.T) {
	d := NewDispatcher(WithStaticFiles())
	res := serve(t, d, NewRequest(http.MethodGet, "/index"))
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, "Error", string(res.Body))
}

func TestHandleRequest_PanickingHandler(t *testing.T) {
	d := NewDispatcher()
	d.Handle("/boom", func(*Request, *Response) { panic("kaboom") })

	res := serve(t, d, NewRequest(http.MethodGet, "/boom"))
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Equal(t, "Internal Server Error", string(res.Body))
}

func TestHandleRequest_RequestID(t *testing.T) {
	d := NewDispatcher()

	req := NewRequest(http.MethodGet, "/x")
	req.Header.Set("X-Request-ID", "abc-123")
	assert.Equal(t, "abc-123", serve(t, d, req).Header.Get("X-Request-ID"))

	generated := serve(t, d, NewRequest(http.MethodGet, "/x")).Header.Get("X-Request-ID")
	assert.Len(t, generated, 36)
}

func TestHandleRequest_KeepAlivePropagated(t *testing.T) {
	d := NewDispatcher()
	d.Handle("/", func(_ *Request, res *Response) { res.SetString("text/plain", "hi") })

	req := NewRequest(http.MethodGet, "/")
	req.KeepAlive = false
	res := serve(t, d, req)
	assert.False(t, res.KeepAlive)
	assert.Equal(t, "close", res.Header.Get("Connection"))
	assert.True(t, res.NeedsClose())
}

func TestHandleRequest_SendErrorReturned(t *testing.T) {
	d := NewDispatcher()
	sendErr := errors.New("broken pipe")
	err := d.HandleRequest(context.Background(), NewRequest(http.MethodGet, "/"), func(*Response) error {
		return sendErr
	})
	assert.ErrorIs(t, err, sendErr)
}

func TestDispatcher_DefaultRoutes(t *testing.T) {
	ctx := context.Background()

	d := NewDispatcher()
	d.Handle("/status", func(_ *Request, res *Response) { res.SetString("application/json", `{"status":"ok"}`) })
	require.NoError(t, d.Initialize(ctx))
	assert.Equal(t, []string{"/", "/status"}, d.Routes())
	assert.Equal(t, `{"status":"ok"}`, string(serve(t, d, NewRequest(http.MethodGet, "/status")).Body))
	assert.Equal(t, "Hello from RequestHandler module!", string(serve(t, d, NewRequest(http.MethodGet, "/")).Body))

	require.NoError(t, d.Shutdown(ctx))
	assert.Empty(t, d.Routes())

	static := NewDispatcher(WithStaticFiles())
	require.NoError(t, static.Initialize(ctx))
	assert.Equal(t, []string{"/*", "/status"}, static.Routes())
}

func TestDispatcher_RemoveRoute(t *testing.T) {
	d := NewDispatcher(WithRoutes(func(d *Dispatcher) {
		d.Handle("/tmp", func(_ *Request, res *Response) { res.SetString("text/plain", "tmp") })
	}))
	assert.Equal(t, http.StatusOK, serve(t, d, NewRequest(http.MethodGet, "/tmp")).Status)

	d.RemoveRouteHandler("/tmp")
	assert.Equal(t, http.StatusNotFound, serve(t, d, NewRequest(http.MethodGet, "/tmp")).Status)
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		target, path, query string
	}{
		{"/", "/", ""},
		{"/a?b=c", "/a", "b=c"},
		{"/a?b=c?d", "/a", "b=c?d"},
		{"/a?", "/a", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		p, q := ParseTarget(tt.target)
		assert.Equal(t, tt.path, p, tt.target)
		assert.Equal(t, tt.query, q, tt.target)
	}
}

func TestIsTraversal(t *testing.T) {
	assert.True(t, IsTraversal("/../a"))
	assert.True(t, IsTraversal("/a/../b"))
	assert.False(t, IsTraversal("/a/..b"))
	assert.False(t, IsTraversal("/a/b"))
}
