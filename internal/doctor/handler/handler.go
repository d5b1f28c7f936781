// Package handler exposes the doctor approval gate over HTTP.
package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"healthtrack/internal/authz"
	"healthtrack/internal/doctor/models"
	id "healthtrack/pkg/domain"
	"healthtrack/pkg/platform/httputil"
	"healthtrack/pkg/requestcontext"
)

// Service is the doctor approval service as seen by the transport.
type Service interface {
	Approve(ctx context.Context, doctorID, adminID id.PrincipalID) (*models.DoctorProfile, error)
	Reject(ctx context.Context, doctorID, adminID id.PrincipalID) (*models.DoctorProfile, error)
	ListPending(ctx context.Context, adminID id.PrincipalID) ([]*models.DoctorProfile, error)
	GetApproval(ctx context.Context, doctorID, callerID id.PrincipalID) (models.ApprovalView, error)
}

type Handler struct {
	service Service
	checker authz.Checker
	logger  *slog.Logger
}

func New(service Service, checker authz.Checker, logger *slog.Logger) *Handler {
	return &Handler{service: service, checker: checker, logger: logger}
}

// Register mounts the routes. r must already require authentication.
func (h *Handler) Register(r chi.Router) {
	r.Get("/doctors/{id}/approval", h.handleGetApproval)
	r.Post("/admin/doctors/{id}/approve", h.handleApprove)
	r.Post("/admin/doctors/{id}/reject", h.handleReject)
	r.Get("/admin/doctors/pending", h.handleListPending)
	r.With(authz.RequireAction(h.checker, authz.ActionDoctorWorkspace, h.logger)).
		Get("/doctor/workspace", h.handleWorkspace)
}

type pendingResponse struct {
	Doctors []*models.DoctorProfile `json:"doctors"`
	Count   int                     `json:"count"`
}

func (h *Handler) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doctorID, err := id.ParsePrincipalID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	view, err := h.service.GetApproval(ctx, doctorID, requestcontext.PrincipalID(ctx))
	if err != nil {
		h.writeErr(ctx, w, "get doctor approval", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, "approve doctor", h.service.Approve)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, "reject doctor", h.service.Reject)
}

func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request, op string,
	decide func(ctx context.Context, doctorID, adminID id.PrincipalID) (*models.DoctorProfile, error)) {
	ctx := r.Context()
	doctorID, err := id.ParsePrincipalID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	profile, err := decide(ctx, doctorID, requestcontext.PrincipalID(ctx))
	if err != nil {
		h.writeErr(ctx, w, op, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile.View())
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doctors, err := h.service.ListPending(ctx, requestcontext.PrincipalID(ctx))
	if err != nil {
		h.writeErr(ctx, w, "list pending doctors", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pendingResponse{Doctors: doctors, Count: len(doctors)})
}

// handleWorkspace is reachable only by approved doctors.
func (h *Handler) handleWorkspace(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"doctor_id": requestcontext.PrincipalID(r.Context()),
		"approved":  true,
	})
}

func (h *Handler) writeErr(ctx context.Context, w http.ResponseWriter, op string, err error) {
	h.logger.WarnContext(ctx, op+" failed",
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, err)
}
