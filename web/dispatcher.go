package web

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skekre98/modserver/cache"
	"github.com/skekre98/modserver/core"
)

const ID = "request-handler"

const (
	// WildcardPath enables static file serving through the attached cache
	// for requests no exact route matches.
	WildcardPath = "/*"
	// ErrorNotFoundPath and AttentionPath name the error pages under the
	// static root.
	ErrorNotFoundPath = "/errorNotFound"
	AttentionPath     = "/attention"

	requestIDHeader = "X-Request-ID"
)

// Handler mutates a response for a request. It must not frame the payload.
type Handler interface {
	ServeRoute(req *Request, res *Response)
}

type HandlerFunc func(req *Request, res *Response)

func (f HandlerFunc) ServeRoute(req *Request, res *Response) { f(req, res) }

// SendFunc writes a finished response.
type SendFunc func(res *Response) error

// RequestHandler turns requests into responses handed to send.
type RequestHandler interface {
	HandleRequest(ctx context.Context, req *Request, send SendFunc) error
}

// StaticCache is the part of the file cache the dispatcher needs: refresh a
// path and get the result.
type StaticCache interface {
	Fetch(ctx context.Context, path string) (cache.Entry, bool)
	Initialized() bool
}

// Dispatcher routes requests to exact-path handlers, to static files, or to
// an error page.
type Dispatcher struct {
	*core.Base

	logger *slog.Logger

	mu     sync.RWMutex
	routes map[string]Handler
	cache  StaticCache
}

func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		routes: make(map[string]Handler),
	}
	d.Base = core.NewBase(core.Info{ID: ID, Name: "HTTP Request Handler"}, d)
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Dispatcher) OnInitialize(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.routes["/status"]; !ok {
		d.routes["/status"] = HandlerFunc(func(_ *Request, res *Response) {
			res.SetString("application/json", `{"status":"ok","service":"modular_http_server"}`)
		})
	}
	// "/" is left to index.html when static files are served
	if _, ok := d.routes["/"]; !ok {
		if _, static := d.routes[WildcardPath]; !static {
			d.routes["/"] = HandlerFunc(func(_ *Request, res *Response) {
				res.SetString("text/plain; charset=utf-8", "Hello from RequestHandler module!")
			})
		}
	}
	d.logger.Info("request handler initialized", "routes", len(d.routes), "static", d.cache != nil)
	return nil
}

func (d *Dispatcher) OnShutdown(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routes = make(map[string]Handler)
	d.logger.Info("request handler shut down")
	return nil
}

// AddRouteHandler registers h for the exact path, replacing any previous
// handler.
func (d *Dispatcher) AddRouteHandler(path string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routes[path] = h
}

func (d *Dispatcher) Handle(path string, f func(req *Request, res *Response)) {
	d.AddRouteHandler(path, HandlerFunc(f))
}

func (d *Dispatcher) RemoveRouteHandler(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.routes, path)
}

// EnableStaticFiles registers the wildcard route.
func (d *Dispatcher) EnableStaticFiles() {
	d.AddRouteHandler(WildcardPath, HandlerFunc(func(*Request, *Response) {}))
}

// Routes returns the registered paths in sorted order.
func (d *Dispatcher) Routes() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	paths := make([]string, 0, len(d.routes))
	for p := range d.routes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// SetFileCache attaches the cache used for static files and error pages,
// replacing any cache given to NewDispatcher. A cache that is not
// initialized is ignored until it is.
func (d *Dispatcher) SetFileCache(c StaticCache) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache = c
}

func (d *Dispatcher) lookup(path string) (h Handler, wildcard bool, c StaticCache) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if path != WildcardPath {
		h = d.routes[path]
	}
	_, wildcard = d.routes[WildcardPath]
	if d.cache != nil && d.cache.Initialized() {
		c = d.cache
	}
	return h, wildcard, c
}

// HandleRequest resolves req and passes exactly one prepared response to
// send. Only the error returned by send is returned.
func (d *Dispatcher) HandleRequest(ctx context.Context, req *Request, send SendFunc) error {
	start := time.Now()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	req.Path, req.Query = ParseTarget(req.Target)

	reqID := req.Header.Get(requestIDHeader)
	if reqID == "" {
		reqID = uuid.NewString()
	}

	res, kind := d.dispatch(ctx, req)
	res.Header.Set(requestIDHeader, reqID)
	res.Prepare()

	elapsed := time.Since(start)
	observeRequest(kind, res.Status, elapsed)
	d.logger.Info("http_access",
		"method", req.Method,
		"path", req.Path,
		"route", kind,
		"status", res.Status,
		"bytes", len(res.Body),
		"duration_ms", elapsed.Milliseconds(),
		"ip", req.RemoteAddr,
		"req_id", reqID,
	)
	return send(res)
}

const (
	kindRoute  = "route"
	kindStatic = "static"
	kindError  = "error"
)

func (d *Dispatcher) dispatch(ctx context.Context, req *Request) (*Response, string) {
	h, wildcard, c := d.lookup(req.Path)
	switch {
	case h != nil:
		return d.serveRoute(h, req), kindRoute
	case wildcard && c != nil && !IsTraversal(req.Path):
		return d.serveStatic(ctx, c, req), kindStatic
	default:
		return d.serveError(ctx, c, req), kindError
	}
}

func (d *Dispatcher) serveRoute(h Handler, req *Request) (res *Response) {
	res = newResponse(req, http.StatusOK)
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("panic in route handler", "path", req.Path, "error", rec)
			res = newResponse(req, http.StatusInternalServerError)
			res.SetString("text/plain; charset=utf-8", "Internal Server Error")
		}
	}()
	h.ServeRoute(req, res)
	return res
}

func (d *Dispatcher) serveStatic(ctx context.Context, c StaticCache, req *Request) *Response {
	res := newResponse(req, http.StatusOK)
	if e, ok := c.Fetch(ctx, req.Path); ok {
		res.SetBody(e.MIMEType, e.Content)
		res.Header.Set("Last-Modified", e.ModTime.UTC().Format(http.TimeFormat))
		return res
	}

	res.Status = http.StatusNotFound
	if page, ok := c.Fetch(ctx, ErrorNotFoundPath); ok {
		res.SetBody("text/html; charset=utf-8", page.Content)
	} else {
		res.SetString("text/plain; charset=utf-8", "File not found")
	}
	return res
}

// serveError answers requests nothing else matched. Traversal attempts get
// the attention page instead of the not-found page.
func (d *Dispatcher) serveError(ctx context.Context, c StaticCache, req *Request) *Response {
	res := newResponse(req, http.StatusNotFound)

	page := ErrorNotFoundPath
	if IsTraversal(req.Path) {
		page = AttentionPath
		d.logger.Warn("path traversal attempt", "path", req.Path, "ip", req.RemoteAddr)
	}
	if c != nil {
		if e, ok := c.Fetch(ctx, page); ok && len(e.Content) > 0 {
			res.SetBody("text/html; charset=utf-8", e.Content)
		}
	}
	if len(res.Body) == 0 {
		res.SetString("text/plain; charset=utf-8", "Error")
	}
	return res
}

// IsTraversal reports whether path tries to climb to a parent directory.
func IsTraversal(path string) bool {
	return strings.Contains(path, "../")
}
