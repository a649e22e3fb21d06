// Package resource implements the list, create and delete operations shared
// by every record kind, independent of how requests reach them.
package resource

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/keywatch/keywatch/internal/metrics"
	"github.com/keywatch/keywatch/internal/model"
	"github.com/keywatch/keywatch/internal/store"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// AllowedMethods is sent in the Allow header of 405 responses.
const AllowedMethods = "GET, POST, DELETE"

// Connector hands out the shared store, connecting on first use.
type Connector interface {
	Ensure(ctx context.Context) (store.Store, error)
}

// Handler serves one record kind.
type Handler struct {
	kind    model.Kind
	conns   Connector
	metrics *metrics.Collector
}

// New creates a handler for kind backed by the given connector. m may be nil.
func New(kind model.Kind, conns Connector, m *metrics.Collector) *Handler {
	return &Handler{kind: kind, conns: conns, metrics: m}
}

// Kind returns the record kind served by h.
func (h *Handler) Kind() model.Kind {
	return h.kind
}

// List returns every record of the kind.
func (h *Handler) List(ctx context.Context) ([]model.Record, error) {
	s, err := h.conns.Ensure(ctx)
	if err != nil {
		return nil, translate(h.kind, err)
	}
	records, err := s.List(ctx, h.kind)
	if err != nil {
		return nil, translate(h.kind, err)
	}
	if records == nil {
		records = []model.Record{}
	}
	return records, nil
}

// Create stores a new record for key. An empty key fails validation before
// the store is contacted; an existing key is reported as a conflict.
func (h *Handler) Create(ctx context.Context, key string) (model.Record, error) {
	if key == "" {
		return model.Record{}, ValidationError(h.kind.MissingKeyMessage)
	}
	s, err := h.conns.Ensure(ctx)
	if err != nil {
		return model.Record{}, translate(h.kind, err)
	}
	rec, err := s.Create(ctx, h.kind, key)
	if err != nil {
		return model.Record{}, translate(h.kind, err)
	}
	slog.Info("record created", "resource", h.kind.Name, "id", rec.ID, "key", rec.Key)
	return rec, nil
}

// Delete removes the record with the given id.
func (h *Handler) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ValidationError(model.MissingIDMessage)
	}
	s, err := h.conns.Ensure(ctx)
	if err != nil {
		return translate(h.kind, err)
	}
	if err := s.Delete(ctx, h.kind, id); err != nil {
		return translate(h.kind, err)
	}
	slog.Info("record deleted", "resource", h.kind.Name, "id", id)
	return nil
}

// --- HTTP ---

// ServeHTTP dispatches on the request method. It is the entry point for
// deployments without a router; the id for DELETE comes from ?id=.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.HandleList(w, r)
	case http.MethodPost:
		h.HandleCreate(w, r)
	case http.MethodDelete:
		h.HandleDelete(w, r)
	default:
		h.HandleUnsupported(w, r)
	}
}

// HandleUnsupported answers any other method on the resource paths.
func (h *Handler) HandleUnsupported(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	MethodNotAllowed(w, r)
	h.observe("other", http.StatusMethodNotAllowed, start)
}

// HandleList serves GET on the collection.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	records, err := h.List(r.Context())
	if err != nil {
		h.fail(w, "list", start, err)
		return
	}
	WriteJSON(w, http.StatusOK, records)
	h.observe("list", http.StatusOK, start)
}

// HandleCreate serves POST on the collection.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	key, err := h.decodeKey(r.Body)
	if err != nil {
		h.fail(w, "create", start, err)
		return
	}

	rec, err := h.Create(r.Context(), key)
	if err != nil {
		h.fail(w, "create", start, err)
		return
	}
	WriteJSON(w, http.StatusCreated, rec)
	h.observe("create", http.StatusCreated, start)
}

// HandleDelete serves DELETE with the id in the {id} path variable or the
// id query parameter.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := h.Delete(r.Context(), RequestID(r)); err != nil {
		h.fail(w, "delete", start, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	h.observe("delete", http.StatusNoContent, start)
}

// RequestID extracts the record id from the route or the query string.
func RequestID(r *http.Request) string {
	if id := mux.Vars(r)["id"]; id != "" {
		return id
	}
	return r.URL.Query().Get("id")
}

// decodeKey reads the kind's key field from a JSON object body. An empty
// body or a missing field yields an empty key.
func (h *Handler) decodeKey(body io.Reader) (string, error) {
	var req map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		return "", ValidationError("invalid request body: " + err.Error())
	}

	raw, ok := req[h.kind.KeyField]
	if !ok || string(raw) == "null" {
		return "", nil
	}
	var key string
	if err := json.Unmarshal(raw, &key); err != nil {
		return "", ValidationError(h.kind.KeyField + " must be a string")
	}
	return key, nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, start time.Time, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = StoreError(err)
	}

	if e.Status >= http.StatusInternalServerError {
		slog.Error("request failed", "resource", h.kind.Name, "operation", op, "err", err)
		if h.metrics != nil {
			h.metrics.StoreError(h.kind.Name, op)
		}
	}

	WriteError(w, e.Status, e.Message)
	h.observe(op, e.Status, start)
}

func (h *Handler) observe(op string, status int, start time.Time) {
	if h.metrics != nil {
		h.metrics.RequestCompleted(h.kind.Name, op, status, time.Since(start))
	}
}

// MethodNotAllowed answers any method the resource paths do not support.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", AllowedMethods)
	WriteError(w, http.StatusMethodNotAllowed, MethodNotAllowedError(r.Method).Message)
}

// --- Helpers ---

// WriteJSON writes data as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes an {"error": message} body.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}
