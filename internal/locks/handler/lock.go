package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"wasteops/internal/locks/service"
	apperrors "wasteops/pkg/errors"
	httputil "wasteops/pkg/http"
	"wasteops/pkg/logger"
	"wasteops/pkg/middleware"
	"wasteops/pkg/model"

	"github.com/julienschmidt/httprouter"
)

const (
	ReservePath   = "/api/v1/locks/reserve"
	ReleasePath   = "/api/v1/locks/release"
	QueryPath     = "/api/v1/locks"
	SubscribePath = "/api/v1/locks/ws"
)

type LockHandler struct {
	service service.LockService
	log     *logger.Logger
}

func NewLockHandler(service service.LockService, log *logger.Logger) *LockHandler {
	return &LockHandler{
		service: service,
		log:     log,
	}
}

func (h *LockHandler) Reserve(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req, err := decodeLockRequest(r)
	if err != nil {
		h.writeError(w, "Reserve", err)
		return
	}

	if _, err := h.service.Reserve(r.Context(), req, middleware.SubjectFrom(r.Context())); err != nil {
		h.writeError(w, "Reserve", err)
		return
	}

	if err := httputil.WriteStatusOK(w); err != nil {
		h.log.Error("failed to write status response", "handler", "Reserve", "operation", "WriteStatusOK", "error", err)
	}
}

func (h *LockHandler) Release(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req, err := decodeLockRequest(r)
	if err != nil {
		h.writeError(w, "Release", err)
		return
	}

	if err := h.service.Release(r.Context(), req); err != nil {
		h.writeError(w, "Release", err)
		return
	}

	if err := httputil.WriteStatusOK(w); err != nil {
		h.log.Error("failed to write status response", "handler", "Release", "operation", "WriteStatusOK", "error", err)
	}
}

func (h *LockHandler) Query(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	set, err := h.service.Query(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		h.writeError(w, "Query", err)
		return
	}

	if err := httputil.WriteSuccess(w, set); err != nil {
		h.log.Error("failed to write success response", "handler", "Query", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LockHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST(ReservePath, h.Reserve)
	router.POST(ReleasePath, h.Release)
	router.GET(QueryPath, h.Query)
}

func (h *LockHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func decodeLockRequest(r *http.Request) (*model.LockRequest, error) {
	var req model.LockRequest
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, apperrors.New(apperrors.CodeInvalidInput, "Request body too large", http.StatusRequestEntityTooLarge)
		}
		return nil, apperrors.InvalidInput("Invalid request body").WithDetails(map[string]any{"error": err.Error()})
	}
	return &req, nil
}
