package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchmap"
	"github.com/kailas-cloud/searchmap/examples/library"
	logpkg "github.com/kailas-cloud/searchmap/internal/logger"
	"github.com/kailas-cloud/searchmap/internal/version"
)

const (
	defaultLimit  = 20
	maxLimit      = 100
	healthTimeout = 2 * time.Second
)

// ErrorCode classifies error responses.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest   ErrorCode = "bad_request"
	CodeUnauthorized ErrorCode = "unauthorized"
	CodeUnavailable  ErrorCode = "unavailable"
	CodeInternal     ErrorCode = "internal_error"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a search error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves the library catalog over HTTP.
type Server struct {
	mapping       *searchmap.Mapping
	gatherer      prometheus.Gatherer
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP server on top of a mapping of the library model.
func NewServer(m *searchmap.Mapping, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	s := &Server{mapping: m, gatherer: gatherer, logger: logger}
	s.errorHandlers = []errorHandler{
		sentinelHandler(searchmap.ErrUnknownField, http.StatusBadRequest, CodeBadRequest),
		sentinelHandler(searchmap.ErrNotSupported, http.StatusBadRequest, CodeBadRequest),
		sentinelHandler(searchmap.ErrInvalidValue, http.StatusBadRequest, CodeBadRequest),
		sentinelHandler(searchmap.ErrIncompatibleField, http.StatusBadRequest, CodeBadRequest),
		sentinelHandler(searchmap.ErrMissingTenant, http.StatusBadRequest, CodeBadRequest),
		sentinelHandler(searchmap.ErrCircuitOpen, http.StatusServiceUnavailable, CodeUnavailable),
		sentinelHandler(searchmap.ErrClosed, http.StatusServiceUnavailable, CodeUnavailable),
	}
	return s
}

// Routes mounts the handlers on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Get("/books/search", s.SearchBooks)
	r.Get("/search", s.SearchAll)
	s.logger.Info("HTTP routes mounted", zap.Int("indexes", len(s.mapping.Types())))
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string       `json:"status"`
	Indexes int          `json:"indexes"`
	Error   string       `json:"error,omitempty"`
	Build   version.Info `json:"build"`
}

// HealthCheck handles GET /health: a one-hit search across every index.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Indexes: len(s.mapping.Types()), Build: version.Get()}
	status := http.StatusOK
	if err := s.ping(ctx); err != nil {
		logpkg.FromContext(r.Context()).Warn("health check failed", zap.Error(err))
		resp.Status, resp.Error = "unhealthy", err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) ping(ctx context.Context) error {
	scope, err := searchmap.Scope(s.mapping)
	if err != nil {
		return err
	}
	_, err = scope.Limit(1).Fetch(ctx)
	return err
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// BookHit is one result of GET /books/search.
type BookHit struct {
	ID         int64    `json:"id"`
	Title      string   `json:"title"`
	ISBN       string   `json:"isbn"`
	Author     string   `json:"author,omitempty"`
	Library    string   `json:"library,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Score      float64  `json:"score"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

// SearchResponse wraps search results.
type SearchResponse[T any] struct {
	Hits []T `json:"hits"`
}

// SearchBooks handles GET /books/search?q=&author=&near=lat,lon&km=&limit=.
func (s *Server) SearchBooks(w http.ResponseWriter, r *http.Request) {
	q, err := parseBookQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	ctx := logpkg.WithFields(r.Context(), zap.String("index", "books"))
	results, err := library.FindBooks(ctx, s.mapping, q)
	if err != nil {
		s.handleError(w, r.WithContext(ctx), err)
		return
	}
	hits := make([]BookHit, 0, len(results))
	for _, res := range results {
		if res.Book == nil {
			continue
		}
		hits = append(hits, toBookHit(res))
	}
	writeJSON(w, http.StatusOK, SearchResponse[BookHit]{Hits: hits})
}

func toBookHit(res library.Result) BookHit {
	b := res.Book
	h := BookHit{ID: b.ID, Title: b.Title, ISBN: b.ISBN, Tags: b.Tags, Score: res.Score}
	if b.Author != nil {
		h.Author = b.Author.Name
	}
	if b.Library != nil {
		h.Library = b.Library.Name
	}
	if res.DistanceKm >= 0 {
		d := res.DistanceKm
		h.DistanceKm = &d
	}
	return h
}

// ReferenceHit is one result of GET /search.
type ReferenceHit struct {
	Index string  `json:"index"`
	Type  string  `json:"type"`
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// SearchAll handles GET /search?q=&limit=: a title search across every index.
func (s *Server) SearchAll(w http.ResponseWriter, r *http.Request) {
	text := strings.TrimSpace(r.URL.Query().Get("q"))
	if text == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "q is required")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	scope, err := searchmap.Scope(s.mapping)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	found, err := scope.
		Where(func(f *searchmap.PredicateFactory) (searchmap.Predicate, error) {
			return f.Match("title", text)
		}).
		Limit(limit).
		Fetch(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	hits := make([]ReferenceHit, len(found))
	for i, h := range found {
		hits[i] = ReferenceHit{
			Index: h.Reference.Index,
			Type:  h.Reference.TypeName,
			ID:    h.Reference.DocumentID,
			Score: h.Score,
		}
	}
	writeJSON(w, http.StatusOK, SearchResponse[ReferenceHit]{Hits: hits})
}

func parseBookQuery(r *http.Request) (library.Query, error) {
	v := r.URL.Query()
	q := library.Query{
		Text:   strings.TrimSpace(v.Get("q")),
		Author: strings.TrimSpace(v.Get("author")),
	}
	var err error
	if q.Limit, err = parseLimit(r); err != nil {
		return q, err
	}
	if near := v.Get("near"); near != "" {
		p, err := parsePoint(near)
		if err != nil {
			return q, err
		}
		q.Near = &p
		q.RadiusKm = 10
		if km := v.Get("km"); km != "" {
			if q.RadiusKm, err = strconv.ParseFloat(km, 64); err != nil || q.RadiusKm <= 0 {
				return q, fmt.Errorf("km must be a positive number, got %q", km)
			}
		}
	}
	return q, nil
}

func parsePoint(s string) (searchmap.Point, error) {
	latStr, lonStr, ok := strings.Cut(s, ",")
	if !ok {
		return searchmap.Point{}, fmt.Errorf("near must be lat,lon, got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil || lat < -90 || lat > 90 {
		return searchmap.Point{}, fmt.Errorf("invalid latitude %q", latStr)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil || lon < -180 || lon > 180 {
		return searchmap.Point{}, fmt.Errorf("invalid longitude %q", lonStr)
	}
	return searchmap.Point{Lat: lat, Lon: lon}, nil
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxLimit {
		return 0, fmt.Errorf("limit must be between 1 and %d, got %q", maxLimit, raw)
	}
	return n, nil
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	logpkg.FromContext(r.Context()).Error("search failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// sentinelHandler answers errors wrapping sentinel with the sentinel's message
// only, keeping internals out of responses.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}
