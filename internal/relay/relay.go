// Package relay implements the relay handler (spec §4.8): inbound HTTP
// requests delivered by the hub over a persistent duplex channel are
// validated, routed against the local HTTP surface, and replied to within
// independent inner/outer timeouts.
package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/langmartai/lmassist/internal/config"
	"github.com/langmartai/lmassist/internal/metrics"
	"go.uber.org/zap"
)

// allowedMethods are the methods accepted per spec §4.8 validation rules.
var allowedMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodPatch: true, http.MethodDelete: true, http.MethodHead: true,
	http.MethodOptions: true,
}

// apiPrefixAllowList are path prefixes always accepted regardless of
// configured service routes.
var apiPrefixAllowList = []string{
	"/knowledge",
	"/context",
	"/health",
	"/metrics",
}

// staticAssetExtensions is the fixed whitelist of static-asset extensions
// (HTML/CSS/JS/fonts/images/media/docs).
var staticAssetExtensions = map[string]bool{
	".html": true, ".htm": true, ".css": true, ".js": true, ".mjs": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true, ".otf": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
	".ico": true, ".webp": true, ".mp4": true, ".webm": true, ".mp3": true,
	".pdf": true, ".txt": true, ".md": true,
}

// Route is a configured service route: requests whose path matches Prefix
// are forwarded, optionally with the prefix stripped first.
type Route struct {
	Prefix      string
	StripPrefix bool
}

// Request is the decoded inbound "api_relay" envelope.
type Request struct {
	RequestID string            `json:"requestId"`
	Method    string            `json:"method"`
	Path      string            `json:"path"`
	Query     string            `json:"query,omitempty"`
	Body      string            `json:"body,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// Response is the outbound "api_relay_response" envelope.
type Response struct {
	RequestID string            `json:"requestId"`
	Status    int               `json:"status,omitempty"`
	Data      any               `json:"data,omitempty"`
	Error     string            `json:"error,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Encoding  string            `json:"encoding,omitempty"`
}

// Handler validates, routes, and forwards relayed requests against a local
// http.Handler (the httpapi router).
type Handler struct {
	Local  http.Handler
	Routes []Route
	Logger *zap.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewHandler builds a Handler. Routes are sorted longest-prefix-first so
// routing always matches the most specific configured route.
func NewHandler(local http.Handler, routes []Route, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	sorted := make([]Route, len(routes))
	copy(sorted, routes)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i].Prefix) > len(sorted[j].Prefix) })
	return &Handler{Local: local, Routes: sorted, Logger: logger, pending: make(map[string]*time.Timer)}
}

// Handle validates and serves one relayed request, always returning a
// Response rather than an error: the only channel back to the hub is the
// reply envelope itself.
func (h *Handler) Handle(req Request) Response {
	if err := h.validate(req); err != nil {
		metrics.RelayRequestsTotal.WithLabelValues("rejected").Inc()
		return Response{RequestID: req.RequestID, Status: http.StatusBadRequest, Error: err.Error()}
	}

	var once sync.Once
	result := make(chan Response, 1)

	h.mu.Lock()
	timer := time.AfterFunc(time.Duration(config.RelayOuterTimeoutSecs)*time.Second, func() {
		once.Do(func() {
			metrics.RelayRequestsTotal.WithLabelValues("timeout").Inc()
			result <- Response{RequestID: req.RequestID, Status: http.StatusGatewayTimeout, Error: "relay request timed out"}
		})
	})
	h.pending[req.RequestID] = timer
	h.mu.Unlock()
	defer h.clearPending(req.RequestID, timer)

	go func() {
		resp := h.forward(req)
		once.Do(func() {
			metrics.RelayRequestsTotal.WithLabelValues("ok").Inc()
			result <- resp
		})
	}()

	return <-result
}

func (h *Handler) clearPending(requestID string, timer *time.Timer) {
	timer.Stop()
	h.mu.Lock()
	delete(h.pending, requestID)
	h.mu.Unlock()
}

// Teardown stops every pending timer, used when the duplex connection to
// the hub drops and no further replies can be delivered.
func (h *Handler) Teardown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, t := range h.pending {
		t.Stop()
		delete(h.pending, id)
	}
}

func (h *Handler) validate(req Request) error {
	if req.RequestID == "" || len(req.RequestID) > 100 {
		return fmt.Errorf("requestId must be a non-empty string of at most 100 characters")
	}
	if !allowedMethods[strings.ToUpper(req.Method)] {
		return fmt.Errorf("method %q is not allowed", req.Method)
	}
	if !strings.HasPrefix(req.Path, "/") || strings.Contains(req.Path, "..") || strings.Contains(req.Path, "//") {
		return fmt.Errorf("path %q is not allowed", req.Path)
	}
	if len(req.Body) > config.RelayBodyCapBytes {
		return fmt.Errorf("body exceeds the %d byte cap", config.RelayBodyCapBytes)
	}
	if !h.pathAccepted(req.Path) {
		return fmt.Errorf("path %q is not in any allow-list", req.Path)
	}
	return nil
}

func (h *Handler) pathAccepted(path string) bool {
	if path == "/" {
		return true
	}
	for _, r := range h.Routes {
		if strings.HasPrefix(path, r.Prefix) {
			return true
		}
	}
	for _, p := range apiPrefixAllowList {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	if ext := extOf(path); ext != "" && staticAssetExtensions[ext] {
		return true
	}
	return false
}

func extOf(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(path[idx:])
}

// matchRoute finds the longest-prefix-matching configured route, if any.
func (h *Handler) matchRoute(path string) (Route, bool) {
	for _, r := range h.Routes {
		if strings.HasPrefix(path, r.Prefix) {
			return r, true
		}
	}
	return Route{}, false
}

func (h *Handler) forward(req Request) Response {
	path := req.Path
	if route, ok := h.matchRoute(path); ok && route.StripPrefix {
		path = strings.TrimPrefix(path, route.Prefix)
		if path == "" {
			path = "/"
		}
	}

	target := path
	if req.Query != "" {
		target += "?" + req.Query
	}

	httpReq := httptest.NewRequest(strings.ToUpper(req.Method), target, strings.NewReader(req.Body))
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("x-relay-source", "hub")
	method := strings.ToUpper(req.Method)
	if req.Body != "" && (method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch) {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	ctx, cancel := context.WithTimeout(httpReq.Context(), time.Duration(config.RelayInnerTimeoutSecs)*time.Second)
	defer cancel()
	httpReq = httpReq.WithContext(ctx)

	rec := httptest.NewRecorder()
	h.Local.ServeHTTP(rec, httpReq)

	return decodeUpstream(req.RequestID, rec)
}

func decodeUpstream(requestID string, rec *httptest.ResponseRecorder) Response {
	resp := Response{RequestID: requestID, Status: rec.Code, Headers: flattenHeaders(rec.Header())}

	contentType := rec.Header().Get("Content-Type")
	body := rec.Body.Bytes()

	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == "application/json":
		var parsed any
		if err := json.Unmarshal(body, &parsed); err == nil {
			resp.Data = parsed
			resp.Encoding = "json"
		} else {
			resp.Data = string(body)
			resp.Encoding = "utf8"
		}
	case isTextMediaType(mediaType):
		resp.Data = string(body)
		resp.Encoding = "utf8"
	default:
		resp.Data = base64.StdEncoding.EncodeToString(body)
		resp.Encoding = "base64"
	}
	return resp
}

func isTextMediaType(mediaType string) bool {
	if mediaType == "" {
		return true
	}
	return strings.HasPrefix(mediaType, "text/")
}

func flattenHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
