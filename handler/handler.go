// Package handler provides the HTTP handlers for the data server.
package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/stevemurr/simple-data-server/localdata"
	"github.com/stevemurr/simple-data-server/store"
)

const (
	// Greeting is the body served on GET /.
	Greeting = "Hello, this is the code assignment app."

	// MaxItems caps GET /data.
	MaxItems = 100

	maxBodyBytes = 2 << 20
	storeTimeout = 10 * time.Second
)

// Handler holds the service context and registers routes. It is built once
// and only read afterwards.
type Handler struct {
	conn    *store.Connection
	local   *localdata.Loader
	log     zerolog.Logger
	newID   func() string
	debug   bool
	origins []string

	router  *mux.Router
	handler http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the base request logger.
func WithLogger(log zerolog.Logger) Option {
	return func(h *Handler) { h.log = log }
}

// WithIDGenerator replaces uuid.NewString as the record id source.
func WithIDGenerator(f func() string) Option {
	return func(h *Handler) { h.newID = f }
}

// WithDebug mounts the pprof endpoints under /debug/pprof/.
func WithDebug(debug bool) Option {
	return func(h *Handler) { h.debug = debug }
}

// WithAllowedOrigins enables CORS for the given origins ("*" for any).
func WithAllowedOrigins(origins []string) Option {
	return func(h *Handler) { h.origins = origins }
}

// New creates a Handler and wires up all routes.
func New(conn *store.Connection, local *localdata.Loader, opts ...Option) *Handler {
	h := &Handler{
		conn:   conn,
		local:  local,
		log:    zerolog.Nop(),
		newID:  uuid.NewString,
		router: mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.routes()

	var next http.Handler = h.router
	next = corsMiddleware(next, h.origins)
	next = recoverMiddleware(next)
	next = hlog.AccessHandler(accessLog)(next)
	next = hlog.RequestIDHandler("req_id", "X-Request-Id")(next)
	h.handler = hlog.NewHandler(h.log)(next)
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	h.router.HandleFunc("/", h.home).Methods(http.MethodGet)
	h.router.HandleFunc("/health", h.health).Methods(http.MethodGet)

	h.router.HandleFunc("/data", h.addData).Methods(http.MethodPost)
	h.router.HandleFunc("/data", h.getData).Methods(http.MethodGet)
	h.router.HandleFunc("/datalocal", h.getLocalData).Methods(http.MethodGet)

	if h.debug {
		h.router.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		h.router.HandleFunc("/debug/pprof/profile", pprof.Profile)
		h.router.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		h.router.HandleFunc("/debug/pprof/trace", pprof.Trace)
		h.router.PathPrefix("/debug/pprof/").HandlerFunc(pprof.Index)
	}

	h.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	h.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

var (
	errNoData    = errors.New("No data provided")
	errNotObject = errors.New("request body must be a JSON object")
)

// readObject decodes the body as a single non-empty JSON object.
func readObject(r *http.Request) (store.Record, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errNoData
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("invalid JSON: trailing data after object")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	if len(obj) == 0 {
		return nil, errNoData
	}
	return store.Record(obj), nil
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request")
}

// ---------- endpoints ----------

func (h *Handler) home(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, Greeting)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"store":  h.conn.State().String(),
	})
}

func (h *Handler) addData(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	log.Debug().Msg("POST /data route accessed")

	rec, err := readObject(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Any client-supplied id is replaced.
	id := h.newID()
	rec[store.IDField] = id

	s, err := h.conn.Store()
	if err != nil {
		log.Error().Err(err).Msg("error in POST /data")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	if err := s.Create(ctx, rec); err != nil {
		log.Error().Err(err).Str("id", id).Msg("error in POST /data")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "success", "id": id})
}

func (h *Handler) getData(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	log.Debug().Msg("GET /data route accessed")

	s, err := h.conn.Store()
	if err != nil {
		log.Error().Err(err).Msg("error in GET /data")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve data from store: "+err.Error())
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	items, err := s.List(ctx, MaxItems)
	if err != nil {
		log.Error().Err(err).Msg("error in GET /data")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve data from store: "+err.Error())
		return
	}
	if items == nil {
		items = []store.Record{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) getLocalData(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	log.Debug().Msg("GET /datalocal route accessed")

	b, err := json.Marshal(h.local.Load())
	if err != nil {
		log.Error().Err(err).Msg("error in GET /datalocal")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve data from local file: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(append(b, '\n'))
}
