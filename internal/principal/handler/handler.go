// Package handler exposes registration, sign-in and the caller's own role and
// profile over HTTP.
package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"healthtrack/internal/principal/models"
	id "healthtrack/pkg/domain"
	"healthtrack/pkg/platform/httputil"
	"healthtrack/pkg/requestcontext"
)

type Service interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.Profile, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error)
	ResolveRole(ctx context.Context, principalID, callerID id.PrincipalID) (id.Role, error)
	GetProfile(ctx context.Context, principalID, callerID id.PrincipalID) (*models.Profile, error)
	UpdateProfile(ctx context.Context, principalID, callerID id.PrincipalID, req models.UpdateProfileRequest) (*models.Profile, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublic mounts the unauthenticated routes.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/auth/register", h.handleRegister)
	r.Post("/auth/login", h.handleLogin)
}

// Register mounts the routes that act on the authenticated caller.
func (h *Handler) Register(r chi.Router) {
	r.Get("/me/role", h.handleGetRole)
	r.Get("/me/profile", h.handleGetProfile)
	r.Patch("/me/profile", h.handleUpdateProfile)
}

type roleResponse struct {
	PrincipalID id.PrincipalID `json:"principal_id"`
	Role        id.Role        `json:"role"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.RegisterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	profile, err := h.service.Register(ctx, req)
	if err != nil {
		h.writeErr(ctx, w, "register", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, profile)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.Login(ctx, req)
	if err != nil {
		h.writeErr(ctx, w, "login", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.PrincipalID(ctx)
	role, err := h.service.ResolveRole(ctx, caller, caller)
	if err != nil {
		h.writeErr(ctx, w, "resolve role", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, roleResponse{PrincipalID: caller, Role: role})
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.PrincipalID(ctx)
	profile, err := h.service.GetProfile(ctx, caller, caller)
	if err != nil {
		h.writeErr(ctx, w, "get profile", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.PrincipalID(ctx)
	var req models.UpdateProfileRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	profile, err := h.service.UpdateProfile(ctx, caller, caller, req)
	if err != nil {
		h.writeErr(ctx, w, "update profile", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

func (h *Handler) writeErr(ctx context.Context, w http.ResponseWriter, op string, err error) {
	h.logger.WarnContext(ctx, op+" failed",
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, err)
}
