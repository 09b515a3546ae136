package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/model"
	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/store"
)

// tenantHeader is filled in by the auth middleware upstream of this
// service; here it is trusted as an opaque scoping identifier.
const tenantHeader = "X-Tenant-ID"

type tenantHandler func(w http.ResponseWriter, r *http.Request, tenantID string)

func (s *Server) withTenant(next tenantHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get(tenantHeader)
		if tenantID == "" {
			writeError(w, http.StatusUnauthorized, "missing tenant")
			return
		}
		next(w, r, tenantID)
	})
}

type enqueueRequest struct {
	JobType     string          `json:"jobType"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"`
	MaxRetries  *int            `json:"maxRetries"`
	ParentJobID string          `json:"parentJobId"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request, tenantID string) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := s.reg.ValidatePayload(req.JobType, req.Payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	maxRetries := s.defMaxTry
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	job, err := s.store.Enqueue(r.Context(), store.EnqueueRequest{
		JobType:     req.JobType,
		TenantID:    tenantID,
		Payload:     req.Payload,
		Priority:    req.Priority,
		MaxRetries:  maxRetries,
		ParentJobID: req.ParentJobID,
	})
	if err != nil {
		var verr *store.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Msg)
			return
		}
		s.log.Error("enqueue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"id": job.ID, "status": job.Status})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, tenantID string) {
	job, err := s.store.GetForTenant(r.Context(), tenantID, r.PathValue("id"))
	if err != nil {
		s.notFoundOr500(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, tenantID string) {
	job, err := s.store.GetForTenant(r.Context(), tenantID, r.PathValue("id"))
	if err != nil {
		s.notFoundOr500(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job.StatusView())
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, tenantID string) {
	id := r.PathValue("id")
	err := s.store.Cancel(r.Context(), tenantID, id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": model.StatusCancelled})
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "job already terminal")
	default:
		s.notFoundOr500(w, err)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, tenantID string) {
	status := model.Status(r.URL.Query().Get("status"))
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	jobs, err := s.store.List(r.Context(), tenantID, status, limit)
	if err != nil {
		s.log.Error("list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if jobs == nil {
		jobs = []model.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// notFoundOr500 collapses cross-tenant access into 404 so job ids from
// other tenants are indistinguishable from missing ones.
func (s *Server) notFoundOr500(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.log.Error("store error", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
