// Package httpapi exposes the credential store over a thin JSON HTTP
// surface. Handlers only decode payloads, dispatch to the store, and map
// taxonomy errors to status codes; all authentication logic lives behind the
// CredentialStore interface.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/heimdallr/internal/common"
	"github.com/dmitrijs2005/heimdallr/internal/logging"
	"github.com/dmitrijs2005/heimdallr/internal/server/credstore"
	"github.com/dmitrijs2005/heimdallr/internal/server/models"
)

// CredentialStore is the dispatch entry point the handlers submit requests to.
type CredentialStore interface {
	CreateUser(ctx context.Context, req credstore.CreateUser) (*models.User, error)
	UserLogin(ctx context.Context, req credstore.UserLogin) (string, error)
}

type Handler struct {
	store  CredentialStore
	logger logging.Logger
}

func NewHandler(store CredentialStore, l logging.Logger) *Handler {
	return &Handler{store: store, logger: l.With("module", "httpapi")}
}

// Routes returns the endpoint mux wrapped with logging and recovery.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/create", h.CreateUser)
	mux.HandleFunc("POST /users/login", h.UserLogin)
	return RecoveryMiddleware(h.logger)(LoggingMiddleware(h.logger)(mux))
}

type errorResponse struct {
	Error string `json:"error"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// CreateUser handles POST /users/create.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req credstore.CreateUser
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn(ctx, "failed to decode create user request", "error", err)
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.store.CreateUser(ctx, req)
	if err != nil {
		h.sendError(w, err.Error(), statusForError(err))
		return
	}

	h.sendJSON(w, user, http.StatusCreated)
}

// UserLogin handles POST /users/login.
func (h *Handler) UserLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req credstore.UserLogin
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn(ctx, "failed to decode login request", "error", err)
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	token, err := h.store.UserLogin(ctx, req)
	if err != nil {
		h.sendError(w, err.Error(), statusForError(err))
		return
	}

	h.sendJSON(w, loginResponse{Token: token}, http.StatusOK)
}

// statusForError maps taxonomy errors to transport status codes. Anything
// unrecognized is an internal error.
func statusForError(err error) int {
	switch {
	case errors.Is(err, common.ErrInvalidEmail), errors.Is(err, common.ErrWeakPassword):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrDuplicateEmail):
		return http.StatusConflict
	case errors.Is(err, common.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) sendJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error(context.Background(), "failed to encode response", "error", err)
	}
}

func (h *Handler) sendError(w http.ResponseWriter, msg string, status int) {
	h.sendJSON(w, errorResponse{Error: msg}, status)
}
