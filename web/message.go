package web

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// ServerName is sent in the Server header of every response.
const ServerName = "ModularServer"

// Request is a fully read HTTP request.
type Request struct {
	Method     string
	Target     string
	Path       string
	Query      string
	ProtoMajor int
	ProtoMinor int
	Header     http.Header
	Body       []byte
	// KeepAlive is the client's keep-alive hint, derived from the protocol
	// version and the Connection header.
	KeepAlive  bool
	RemoteAddr string
}

// NewRequest builds an HTTP/1.1 keep-alive request for target.
func NewRequest(method, target string) *Request {
	path, query := ParseTarget(target)
	return &Request{
		Method:     method,
		Target:     target,
		Path:       path,
		Query:      query,
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     make(http.Header),
		KeepAlive:  true,
	}
}

func requestFromHTTP(r *http.Request, body []byte) *Request {
	target := r.RequestURI
	if target == "" {
		target = r.URL.RequestURI()
	}
	path, query := ParseTarget(target)
	return &Request{
		Method:     r.Method,
		Target:     target,
		Path:       path,
		Query:      query,
		ProtoMajor: r.ProtoMajor,
		ProtoMinor: r.ProtoMinor,
		Header:     r.Header,
		Body:       body,
		KeepAlive:  !r.Close,
		RemoteAddr: r.RemoteAddr,
	}
}

// ParseTarget splits a request target on its first '?'.
func ParseTarget(target string) (path, query string) {
	path, query, _ = strings.Cut(target, "?")
	return path, query
}

// Response is what route handlers fill in. Handlers set Status, Header and
// Body; framing headers are computed by Prepare.
type Response struct {
	Status     int
	Header     http.Header
	Body       []byte
	KeepAlive  bool
	ProtoMajor int
	ProtoMinor int
}

func newResponse(req *Request, status int) *Response {
	res := &Response{
		Status:     status,
		Header:     make(http.Header),
		KeepAlive:  req.KeepAlive,
		ProtoMajor: req.ProtoMajor,
		ProtoMinor: req.ProtoMinor,
	}
	if res.ProtoMajor == 0 {
		res.ProtoMajor, res.ProtoMinor = 1, 1
	}
	res.Header.Set("Server", ServerName)
	return res
}

func (r *Response) SetBody(contentType string, body []byte) {
	r.Header.Set("Content-Type", contentType)
	r.Body = body
}

func (r *Response) SetString(contentType, body string) {
	r.SetBody(contentType, []byte(body))
}

// bodyAllowed reports whether a response with the given status may
// carry a payload. 1xx, 204 and 304 never do.
func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status < 200:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}

// Prepare finalizes payload framing. Statuses that cannot carry a body
// lose it along with its Content-Length and Content-Type.
func (r *Response) Prepare() {
	if bodyAllowed(r.Status) {
		r.Header.Set("Content-Length", strconv.Itoa(len(r.Body)))
	} else {
		r.Body = nil
		r.Header.Del("Content-Length")
		r.Header.Del("Content-Type")
	}
	switch {
	case !r.KeepAlive:
		r.Header.Set("Connection", "close")
	case r.ProtoMajor == 1 && r.ProtoMinor == 0:
		r.Header.Set("Connection", "keep-alive")
	}
}

// NeedsClose reports whether the connection has to be closed after this
// response is written.
func (r *Response) NeedsClose() bool {
	if !r.KeepAlive {
		return true
	}
	for _, v := range r.Header.Values("Connection") {
		for _, tok := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(tok), "close") {
				return true
			}
		}
	}
	return false
}

// toHTTP converts r for serialization. req may be nil; when it is a HEAD
// request the body is left out.
func (r *Response) toHTTP(req *http.Request) *http.Response {
	body := r.Body
	if !bodyAllowed(r.Status) {
		body = nil
	}
	return &http.Response{
		Status:        strconv.Itoa(r.Status) + " " + http.StatusText(r.Status),
		StatusCode:    r.Status,
		Proto:         "HTTP/" + strconv.Itoa(r.ProtoMajor) + "." + strconv.Itoa(r.ProtoMinor),
		ProtoMajor:    r.ProtoMajor,
		ProtoMinor:    r.ProtoMinor,
		Header:        r.Header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Close:         r.NeedsClose(),
		Request:       req,
	}
}
