// Package handlers contains HTTP handlers for the master API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/YangYuS8/mlsmanager/internal/store"
	"github.com/YangYuS8/mlsmanager/pkg/api"
)

// Store combines the persistence interfaces the master API needs.
type Store interface {
	Ping(ctx context.Context) error
	store.NodeStore
	store.JobStore
	store.DatasetStore
}

// TokenIssuer mints agent credentials on registration.
type TokenIssuer interface {
	Issue(nodeID string) (string, error)
}

// Assigner runs a scheduling pass on demand.
type Assigner interface {
	AssignAllPending(ctx context.Context) (int, error)
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store    Store
	issuer   TokenIssuer
	assigner Assigner
}

// New creates a new Handlers instance with the given dependencies.
func New(s Store, issuer TokenIssuer, assigner Assigner) *Handlers {
	return &Handlers{store: s, issuer: issuer, assigner: assigner}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

// storeError maps store sentinel errors to HTTP status codes.
func (h *Handlers) storeError(w http.ResponseWriter, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.httpError(w, notFoundMsg, http.StatusNotFound)
	case errors.Is(err, store.ErrConflict):
		h.httpError(w, err.Error(), http.StatusConflict)
	default:
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
	}
}

// parsePagination reads offset/limit query params with sane bounds.
func parsePagination(r *http.Request) (offset, limit int) {
	limit = 100
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	return offset, limit
}
