package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"campusledger/internal/domain"
)

type assessRequest struct {
	OwnerID         int64      `json:"owner_id"`
	ScheduleRef     string     `json:"schedule_ref"`
	ObligationPaise int64      `json:"obligation_paise"`
	DueAt           *time.Time `json:"due_at,omitempty"`
}

// billingView decorates a record with its derived status and outstanding
// balance, which never hit the database.
type billingView struct {
	*domain.BillingRecord
	Status           domain.BillingStatus `json:"status"`
	OutstandingPaise int64                `json:"outstanding_paise"`
	Notice           string               `json:"notice,omitempty"`
}

func viewOf(record *domain.BillingRecord) billingView {
	return billingView{
		BillingRecord:    record,
		Status:           record.Status(),
		OutstandingPaise: record.OutstandingPaise(),
	}
}

func (h *Handler) assess(w http.ResponseWriter, r *http.Request) {
	var req assessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	record, err := h.billing.Assess(r.Context(), req.OwnerID, req.ScheduleRef, req.ObligationPaise, req.DueAt)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) {
			respondWithDomainError(w, err)
			return
		}
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, viewOf(record))
}

func (h *Handler) getBillingRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid billing record id")
		return
	}
	record, err := h.billing.GetRecord(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	claims := principalFrom(r.Context())
	if claims.Role != "staff" && claims.Role != "admin" && record.OwnerID != claims.OwnerID {
		respondWithError(w, http.StatusForbidden, "not your billing record")
		return
	}
	respondWithJSON(w, http.StatusOK, viewOf(record))
}

func (h *Handler) listBillingRecords(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	claims := principalFrom(r.Context())
	ownerID := claims.OwnerID
	if v := r.URL.Query().Get("owner_id"); v != "" && (claims.Role == "staff" || claims.Role == "admin") {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
			ownerID = parsed
		}
	}
	records, total, err := h.billing.ListRecords(r.Context(), ownerID, page, pageSize)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	views := make([]billingView, 0, len(records))
	for i := range records {
		views = append(views, viewOf(&records[i]))
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"records": views,
		"total":   total,
		"page":    page,
	})
}

type paymentRequest struct {
	AmountPaise   int64                `json:"amount_paise"`
	ExternalTxnID string               `json:"external_txn_id"`
	Method        domain.PaymentMethod `json:"method"`
}

func (h *Handler) applyPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid billing record id")
		return
	}
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ExternalTxnID == "" {
		req.ExternalTxnID = r.Header.Get("Idempotency-Key")
	}
	record, err := h.billing.ApplyPayment(r.Context(), id, req.AmountPaise, req.ExternalTxnID, req.Method)
	switch {
	case err == nil:
		respondWithJSON(w, http.StatusOK, viewOf(record))
	case errors.Is(err, domain.ErrDuplicatePayment) && record != nil:
		// The gateway retried a transaction we already recorded. Answer
		// exactly as the first attempt did so the retry is harmless.
		view := viewOf(record)
		view.Notice = "duplicate transaction, already applied"
		respondWithJSON(w, http.StatusOK, view)
	case errors.Is(err, domain.ErrOverpayment) && record != nil:
		view := viewOf(record)
		view.Notice = "payment exceeds outstanding balance"
		respondWithJSON(w, http.StatusAccepted, view)
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrConflict):
		respondWithDomainError(w, err)
	default:
		respondWithError(w, http.StatusBadRequest, err.Error())
	}
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid billing record id")
		return
	}
	events, err := h.billing.ListPayments(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"payments": events})
}

type adjustmentRequest struct {
	AmountPaise   int64  `json:"amount_paise"`
	AdjustmentRef string `json:"adjustment_ref"`
}

func (h *Handler) applyDiscount(w http.ResponseWriter, r *http.Request) {
	h.applyAdjustment(w, r, h.billing.ApplyDiscount)
}

func (h *Handler) applyScholarship(w http.ResponseWriter, r *http.Request) {
	h.applyAdjustment(w, r, h.billing.ApplyScholarship)
}

func (h *Handler) applyAdjustment(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, recordID, amountPaise int64, adjustmentRef string) (*domain.BillingRecord, error)) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid billing record id")
		return
	}
	var req adjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	record, err := apply(r.Context(), id, req.AmountPaise, req.AdjustmentRef)
	switch {
	case err == nil:
		respondWithJSON(w, http.StatusOK, viewOf(record))
	case errors.Is(err, domain.ErrDuplicatePayment) && record != nil:
		view := viewOf(record)
		view.Notice = "duplicate adjustment, already applied"
		respondWithJSON(w, http.StatusOK, view)
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrConflict):
		respondWithDomainError(w, err)
	default:
		respondWithError(w, http.StatusBadRequest, err.Error())
	}
}
