package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"campusledger/internal/domain"
	"campusledger/internal/security"
	"campusledger/internal/service"
)

// canActOn reports whether the principal may act on the allocation: the
// owner themselves, or staff.
func canActOn(claims *security.PrincipalClaims, alloc *domain.Allocation) bool {
	return claims.Role == "staff" || claims.Role == "admin" || alloc.OwnerID == claims.OwnerID
}

type createPoolRequest struct {
	Kind           domain.PoolKind `json:"kind"`
	Label          string          `json:"label"`
	TotalCapacity  int32           `json:"total_capacity"`
	AcademicYear   string          `json:"academic_year,omitempty"`
	ISBN           string          `json:"isbn,omitempty"`
	WindowOpensAt  *time.Time      `json:"window_opens_at,omitempty"`
	WindowClosesAt *time.Time      `json:"window_closes_at,omitempty"`
}

func (h *Handler) createPool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	pool := &domain.Pool{
		Kind:           req.Kind,
		Label:          req.Label,
		TotalCapacity:  req.TotalCapacity,
		AcademicYear:   req.AcademicYear,
		ISBN:           req.ISBN,
		WindowOpensAt:  req.WindowOpensAt,
		WindowClosesAt: req.WindowClosesAt,
	}
	if err := h.pools.CreatePool(r.Context(), pool); err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) {
			respondWithDomainError(w, err)
			return
		}
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, pool)
}

func (h *Handler) getPool(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid pool id")
		return
	}
	pool, err := h.pools.GetPool(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, pool)
}

func (h *Handler) listPools(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	kind := domain.PoolKind(r.URL.Query().Get("kind"))
	pools, total, err := h.pools.ListPools(r.Context(), kind, page, pageSize)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"pools": pools,
		"total": total,
		"page":  page,
	})
}

func (h *Handler) archivePool(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid pool id")
		return
	}
	if err := h.pools.ArchivePool(r.Context(), id); err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}

type reserveRequest struct {
	OwnerID int64      `json:"owner_id,omitempty"` // staff only; students reserve for themselves
	DueAt   *time.Time `json:"due_at,omitempty"`
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	poolID, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid pool id")
		return
	}
	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	claims := principalFrom(r.Context())
	ownerID := claims.OwnerID
	if req.OwnerID != 0 && req.OwnerID != claims.OwnerID {
		if claims.Role != "staff" && claims.Role != "admin" {
			respondWithError(w, http.StatusForbidden, "cannot reserve on behalf of another owner")
			return
		}
		ownerID = req.OwnerID
	}
	alloc, err := h.pools.Reserve(r.Context(), poolID, ownerID, service.ReserveOptions{DueAt: req.DueAt})
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, alloc)
}

func (h *Handler) getAllocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid allocation id")
		return
	}
	alloc, err := h.pools.GetAllocation(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	if !canActOn(principalFrom(r.Context()), alloc) {
		respondWithError(w, http.StatusForbidden, "not your allocation")
		return
	}
	respondWithJSON(w, http.StatusOK, alloc)
}

// authorizeAllocation loads the allocation and enforces the owner-or-staff
// rule before any mutation. Returns false after writing the response.
func (h *Handler) authorizeAllocation(w http.ResponseWriter, r *http.Request, id int64) bool {
	alloc, err := h.pools.GetAllocation(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, err)
		return false
	}
	if !canActOn(principalFrom(r.Context()), alloc) {
		respondWithError(w, http.StatusForbidden, "not your allocation")
		return false
	}
	return true
}

func (h *Handler) listAllocations(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	claims := principalFrom(r.Context())
	ownerID := claims.OwnerID
	if v := r.URL.Query().Get("owner_id"); v != "" && (claims.Role == "staff" || claims.Role == "admin") {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
			ownerID = parsed
		}
	}
	allocs, total, err := h.pools.ListAllocations(r.Context(), ownerID, r.URL.Query().Get("status"), page, pageSize)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"allocations": allocs,
		"total":       total,
		"page":        page,
	})
}

type releaseResponse struct {
	Allocation *domain.Allocation `json:"allocation"`
	Penalty    *domain.Penalty    `json:"penalty,omitempty"`
	Notice     string             `json:"notice,omitempty"`
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid allocation id")
		return
	}
	if !h.authorizeAllocation(w, r, id) {
		return
	}
	alloc, penalty, err := h.pools.Release(r.Context(), id)
	if err != nil {
		// Releasing twice is not an error for the caller: the allocation is
		// already in the state they asked for.
		if errors.Is(err, domain.ErrAlreadyReleased) && alloc != nil {
			respondWithJSON(w, http.StatusOK, releaseResponse{Allocation: alloc, Notice: "already released"})
			return
		}
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, releaseResponse{Allocation: alloc, Penalty: penalty})
}

// cancel is staff-only at the routing layer; no fine is computed.
func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid allocation id")
		return
	}
	alloc, err := h.pools.Cancel(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyReleased) && alloc != nil {
			respondWithJSON(w, http.StatusOK, releaseResponse{Allocation: alloc, Notice: "already ended"})
			return
		}
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, releaseResponse{Allocation: alloc})
}

type renewRequest struct {
	ExtensionDays int32 `json:"extension_days,omitempty"`
}

func (h *Handler) renew(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid allocation id")
		return
	}
	if !h.authorizeAllocation(w, r, id) {
		return
	}
	var req renewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var extension time.Duration
	if req.ExtensionDays > 0 {
		extension = time.Duration(req.ExtensionDays) * 24 * time.Hour
	}
	alloc, err := h.pools.Renew(r.Context(), id, extension)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyReleased) {
			respondWithError(w, http.StatusUnprocessableEntity, "allocation is no longer active")
			return
		}
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, alloc)
}

func (h *Handler) previewFine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid allocation id")
		return
	}
	if !h.authorizeAllocation(w, r, id) {
		return
	}
	penalty, err := h.pools.PreviewFine(r.Context(), id, time.Now().UTC())
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, penalty)
}
