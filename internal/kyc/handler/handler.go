// Package handler exposes the KYC pipeline over HTTP.
package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"healthtrack/internal/kyc/models"
	id "healthtrack/pkg/domain"
	"healthtrack/pkg/platform/httputil"
	"healthtrack/pkg/requestcontext"
)

// Service is the KYC service as seen by the transport.
type Service interface {
	Submit(ctx context.Context, principalID id.PrincipalID, req models.SubmitRequest) (*models.KycDocument, error)
	Verify(ctx context.Context, kycID id.KycID, adminID id.PrincipalID) (*models.KycDocument, error)
	Reject(ctx context.Context, kycID id.KycID, adminID id.PrincipalID, reason string) (*models.KycDocument, error)
	GetStatus(ctx context.Context, principalID, callerID id.PrincipalID) (*models.StatusView, error)
	ListPending(ctx context.Context, adminID id.PrincipalID) ([]*models.KycDocument, error)
	ListAudit(ctx context.Context, kycID id.KycID, adminID id.PrincipalID) ([]*models.AuditEntry, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the routes. r must already require authentication.
func (h *Handler) Register(r chi.Router) {
	r.Post("/kyc", h.handleSubmit)
	r.Get("/kyc/me", h.handleGetOwnStatus)
	r.Get("/kyc/{principalID}", h.handleGetStatus)
	r.Get("/admin/kyc/pending", h.handleListPending)
	r.Post("/admin/kyc/{id}/verify", h.handleVerify)
	r.Post("/admin/kyc/{id}/reject", h.handleReject)
	r.Get("/admin/kyc/{id}/audit", h.handleListAudit)
}

type pendingResponse struct {
	Documents []*models.KycDocument `json:"documents"`
	Count     int                   `json:"count"`
}

type auditResponse struct {
	Entries []*models.AuditEntry `json:"entries"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.SubmitRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	doc, err := h.service.Submit(ctx, requestcontext.PrincipalID(ctx), req)
	if err != nil {
		h.writeErr(ctx, w, "submit kyc", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, doc)
}

func (h *Handler) handleGetOwnStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.PrincipalID(ctx)
	h.writeStatus(ctx, w, caller, caller)
}

func (h *Handler) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principalID, err := id.ParsePrincipalID(chi.URLParam(r, "principalID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.writeStatus(ctx, w, principalID, requestcontext.PrincipalID(ctx))
}

func (h *Handler) writeStatus(ctx context.Context, w http.ResponseWriter, principalID, callerID id.PrincipalID) {
	view, err := h.service.GetStatus(ctx, principalID, callerID)
	if err != nil {
		h.writeErr(ctx, w, "get kyc status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kycID, err := id.ParseKycID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	doc, err := h.service.Verify(ctx, kycID, requestcontext.PrincipalID(ctx))
	if err != nil {
		h.writeErr(ctx, w, "verify kyc", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kycID, err := id.ParseKycID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req models.RejectRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	doc, err := h.service.Reject(ctx, kycID, requestcontext.PrincipalID(ctx), req.Reason)
	if err != nil {
		h.writeErr(ctx, w, "reject kyc", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docs, err := h.service.ListPending(ctx, requestcontext.PrincipalID(ctx))
	if err != nil {
		h.writeErr(ctx, w, "list pending kyc", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pendingResponse{Documents: docs, Count: len(docs)})
}

func (h *Handler) handleListAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kycID, err := id.ParseKycID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.service.ListAudit(ctx, kycID, requestcontext.PrincipalID(ctx))
	if err != nil {
		h.writeErr(ctx, w, "list kyc audit", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, auditResponse{Entries: entries})
}

func (h *Handler) writeErr(ctx context.Context, w http.ResponseWriter, op string, err error) {
	h.logger.WarnContext(ctx, op+" failed",
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, err)
}
