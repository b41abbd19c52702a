package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campusledger/internal/security"
	"campusledger/internal/service"
)

// Handler is the HTTP boundary. It translates requests into service calls
// and domain errors into statuses; every business decision lives below it.
type Handler struct {
	pools   service.PoolService
	billing service.BillingService
}

func NewHandler(pools service.PoolService, billing service.BillingService) *Handler {
	return &Handler{pools: pools, billing: billing}
}

func NewRouter(h *Handler, validator security.TokenValidator) *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware)

	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(mux.MiddlewareFunc(authMiddleware(validator)))

	staff := requireRole("staff", "admin")

	api.Handle("/pools", staff(http.HandlerFunc(h.createPool))).Methods(http.MethodPost)
	api.HandleFunc("/pools", h.listPools).Methods(http.MethodGet)
	api.HandleFunc("/pools/{id:[0-9]+}", h.getPool).Methods(http.MethodGet)
	api.Handle("/pools/{id:[0-9]+}/archive", staff(http.HandlerFunc(h.archivePool))).Methods(http.MethodPost)
	api.HandleFunc("/pools/{id:[0-9]+}/reserve", h.reserve).Methods(http.MethodPost)

	api.HandleFunc("/allocations", h.listAllocations).Methods(http.MethodGet)
	api.HandleFunc("/allocations/{id:[0-9]+}", h.getAllocation).Methods(http.MethodGet)
	api.HandleFunc("/allocations/{id:[0-9]+}/release", h.release).Methods(http.MethodPost)
	api.Handle("/allocations/{id:[0-9]+}/cancel", staff(http.HandlerFunc(h.cancel))).Methods(http.MethodPost)
	api.HandleFunc("/allocations/{id:[0-9]+}/renew", h.renew).Methods(http.MethodPost)
	api.HandleFunc("/allocations/{id:[0-9]+}/fine", h.previewFine).Methods(http.MethodGet)

	api.Handle("/billing", staff(http.HandlerFunc(h.assess))).Methods(http.MethodPost)
	api.HandleFunc("/billing", h.listBillingRecords).Methods(http.MethodGet)
	api.HandleFunc("/billing/{id:[0-9]+}", h.getBillingRecord).Methods(http.MethodGet)
	api.HandleFunc("/billing/{id:[0-9]+}/payments", h.applyPayment).Methods(http.MethodPost)
	api.HandleFunc("/billing/{id:[0-9]+}/payments", h.listPayments).Methods(http.MethodGet)
	api.Handle("/billing/{id:[0-9]+}/discounts", staff(http.HandlerFunc(h.applyDiscount))).Methods(http.MethodPost)
	api.Handle("/billing/{id:[0-9]+}/scholarships", staff(http.HandlerFunc(h.applyScholarship))).Methods(http.MethodPost)

	return r
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

func pageParams(r *http.Request) (page, pageSize int32) {
	page, pageSize = 1, 50
	if v, err := strconv.ParseInt(r.URL.Query().Get("page"), 10, 32); err == nil && v > 0 {
		page = int32(v)
	}
	if v, err := strconv.ParseInt(r.URL.Query().Get("page_size"), 10, 32); err == nil && v > 0 && v <= 200 {
		pageSize = int32(v)
	}
	return page, pageSize
}
