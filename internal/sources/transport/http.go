// Package transport provides HTTP handlers for the sources domain.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/verisource/internal/chains/ton"
	"github.com/pendergraft/verisource/internal/manifest"
	"github.com/pendergraft/verisource/internal/sources/domain"
)

// Service defines the sources service interface for HTTP transport.
type Service interface {
	ManifestURI(ctx context.Context, req domain.ResolveRequest) (*domain.Pointer, error)
	Resolve(ctx context.Context, req domain.ResolveRequest) (*domain.Sources, error)
	ListLookups(ctx context.Context, filter domain.LookupFilter, pagination domain.PaginationParams) (*domain.LookupList, error)
}

// Handler handles HTTP requests for verified sources.
type Handler struct {
	svc Service
}

// NewHandler creates a new sources HTTP handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the source routes on a chi router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/{codeHash}", h.handleResolve)
	r.Get("/{codeHash}/manifest", h.handleManifest)
}

// RegisterLookupRoutes registers the resolution log routes on a chi router.
func (h *Handler) RegisterLookupRoutes(r chi.Router) {
	r.Get("/", h.handleListLookups)
}

// resolveRequest reads the code hash path parameter and the network and
// verifier query parameters. Base64 hashes arrive with '/' escaped.
func resolveRequest(r *http.Request) (domain.ResolveRequest, error) {
	hash, err := url.PathUnescape(chi.URLParam(r, "codeHash"))
	if err != nil {
		return domain.ResolveRequest{}, err
	}
	q := r.URL.Query()
	return domain.ResolveRequest{
		CodeHash: hash,
		Network:  q.Get("network"),
		Verifier: q.Get("verifier"),
	}, nil
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	req, err := resolveRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_CODE_HASH", "Malformed code hash")
		return
	}

	src, err := h.svc.Resolve(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromSources(src))
}

func (h *Handler) handleManifest(w http.ResponseWriter, r *http.Request) {
	req, err := resolveRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_CODE_HASH", "Malformed code hash")
		return
	}

	p, err := h.svc.ManifestURI(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromPointer(*p))
}

func (h *Handler) handleListLookups(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 50
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	result, err := h.svc.ListLookups(r.Context(), domain.LookupFilter{
		Status:   q.Get("status"),
		Network:  q.Get("network"),
		CodeHash: q.Get("codeHash"),
	}, domain.PaginationParams{
		Limit:  limit,
		Cursor: q.Get("cursor"),
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidFilter) {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list lookups")
		return
	}

	writeJSON(w, http.StatusOK, FromLookupList(result, limit))
}

// writeServiceError maps resolution errors to status codes. Deadlines are
// checked first since they surface wrapped in a network error.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "TIMEOUT", "Resolution timed out")
	case errors.Is(err, domain.ErrNoSource):
		writeError(w, http.StatusNotFound, "NO_VERIFIED_SOURCE", "No verified source for this code hash")
	case errors.Is(err, domain.ErrInvalidCodeHash):
		writeError(w, http.StatusBadRequest, "INVALID_CODE_HASH", err.Error())
	case errors.Is(err, domain.ErrInvalidNetwork):
		writeError(w, http.StatusBadRequest, "INVALID_NETWORK", err.Error())
	case errors.Is(err, domain.ErrInvalidVerifier):
		writeError(w, http.StatusBadRequest, "INVALID_VERIFIER", err.Error())
	case errors.Is(err, ton.ErrNetwork):
		writeError(w, http.StatusBadGateway, "NODE_UNAVAILABLE", "TON node request failed")
	case errors.Is(err, ton.ErrProtocol):
		writeError(w, http.StatusBadGateway, "REGISTRY_PROTOCOL_ERROR", err.Error())
	case errors.Is(err, ton.ErrDecode):
		writeError(w, http.StatusBadGateway, "RECORD_DECODE_ERROR", err.Error())
	case errors.Is(err, manifest.ErrManifest):
		writeError(w, http.StatusBadGateway, "INVALID_MANIFEST", err.Error())
	case errors.Is(err, manifest.ErrFetch):
		writeError(w, http.StatusBadGateway, "FETCH_FAILED", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to resolve sources")
	}
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
