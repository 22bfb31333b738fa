package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/lotkeeper/lotkeeper/internal/core/domain"
	"github.com/lotkeeper/lotkeeper/internal/core/service"
)

type HTTPHandler struct {
	catalog    *service.CatalogService
	allocation *service.AllocationService
}

func NewHTTPHandler(catalog *service.CatalogService, allocation *service.AllocationService) *HTTPHandler {
	return &HTTPHandler{catalog: catalog, allocation: allocation}
}

// Router wires every API route. Mutation verbs on the transaction ledger are
// registered explicitly so they answer 405 instead of 404: the ledger exists,
// it just cannot be rewritten.
func (h *HTTPHandler) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.healthCheck).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/products", h.createProduct).Methods(http.MethodPost)
	api.HandleFunc("/products", h.listProducts).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", h.getProduct).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", h.renameProduct).Methods(http.MethodPut)
	api.HandleFunc("/products/{id}", h.deleteProduct).Methods(http.MethodDelete)

	api.HandleFunc("/products/{id}/lots", h.createLot).Methods(http.MethodPost)
	api.HandleFunc("/products/{id}/lots", h.listLots).Methods(http.MethodGet)
	api.HandleFunc("/lots/{id}", h.getLot).Methods(http.MethodGet)
	api.HandleFunc("/lots/{id}", h.updateLot).Methods(http.MethodPut)
	api.HandleFunc("/lots/{id}", h.deleteLot).Methods(http.MethodDelete)
	api.HandleFunc("/lots/{id}/balance", h.lotBalance).Methods(http.MethodGet)

	api.HandleFunc("/transactions", h.createTransaction).Methods(http.MethodPost)
	api.HandleFunc("/transactions", h.listTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}", h.ledgerImmutable).
		Methods(http.MethodPut, http.MethodPatch, http.MethodDelete)

	api.HandleFunc("/quantities", h.listQuantities).Methods(http.MethodGet)

	return logMiddleware(r)
}

type createProductRequest struct {
	Name string `json:"name"`
}

type createLotRequest struct {
	Description string `json:"description"`
}

type createTransactionRequest struct {
	RequestID string          `json:"request_id"`
	ProductID string          `json:"product_id"`
	LotID     string          `json:"lot_id"`
	Delta     decimal.Decimal `json:"delta"`
	Policy    string          `json:"policy"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *HTTPHandler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "name is required")
		return
	}

	product, err := h.catalog.CreateProduct(r.Context(), req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (h *HTTPHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *HTTPHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *HTTPHandler) renameProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "name is required")
		return
	}

	product, err := h.catalog.RenameProduct(r.Context(), mux.Vars(r)["id"], req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *HTTPHandler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteProduct(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) createLot(w http.ResponseWriter, r *http.Request) {
	var req createLotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	lot, err := h.catalog.CreateLot(r.Context(), mux.Vars(r)["id"], req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lot)
}

func (h *HTTPHandler) listLots(w http.ResponseWriter, r *http.Request) {
	lots, err := h.catalog.ListLots(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lots)
}

func (h *HTTPHandler) getLot(w http.ResponseWriter, r *http.Request) {
	lot, err := h.catalog.GetLot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lot)
}

func (h *HTTPHandler) updateLot(w http.ResponseWriter, r *http.Request) {
	var req createLotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	lot, err := h.catalog.UpdateLotDescription(r.Context(), mux.Vars(r)["id"], req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lot)
}

func (h *HTTPHandler) deleteLot(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteLot(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) lotBalance(w http.ResponseWriter, r *http.Request) {
	lotID := mux.Vars(r)["id"]
	balance, err := h.allocation.LotBalance(r.Context(), lotID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lot_id":  lotID,
		"balance": balance,
	})
}

func (h *HTTPHandler) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "product_id is required")
		return
	}

	txn, err := h.allocation.CreateTransaction(r.Context(), service.CreateTransactionRequest{
		RequestID: req.RequestID,
		ProductID: req.ProductID,
		LotID:     req.LotID,
		Delta:     req.Delta,
		Policy:    domain.PolicyKind(req.Policy),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	log.WithFields(log.Fields{
		"transaction_id": txn.ID,
		"product_id":     txn.ProductID,
		"lot_id":         txn.LotID,
		"delta":          txn.Delta.String(),
		"policy":         txn.Policy,
	}).Info("transaction committed")

	writeJSON(w, http.StatusCreated, txn)
}

func (h *HTTPHandler) listTransactions(w http.ResponseWriter, r *http.Request) {
	transactions, err := h.allocation.ListTransactions(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transactions)
}

func (h *HTTPHandler) ledgerImmutable(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed",
		"transactions are append-only and cannot be modified")
}

func (h *HTTPHandler) listQuantities(w http.ResponseWriter, r *http.Request) {
	levels, err := h.allocation.ListQuantities(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, levels)
}

// writeDomainError maps core sentinel errors onto HTTP statuses. Anything
// unmapped is a 500 with a generic body; the detail stays in the log.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		writeError(w, http.StatusNotFound, "not_found", "product not found")
	case errors.Is(err, domain.ErrLotNotFound):
		writeError(w, http.StatusNotFound, "not_found", "lot not found")
	case errors.Is(err, domain.ErrInvalidReference):
		writeError(w, http.StatusUnprocessableEntity, "invalid_reference", "lot does not belong to product")
	case errors.Is(err, domain.ErrNoLotAvailable):
		writeError(w, http.StatusUnprocessableEntity, "no_lot_available", "product has no lots to allocate from")
	case errors.Is(err, domain.ErrInsufficientQuantity):
		writeError(w, http.StatusUnprocessableEntity, "insufficient_quantity", "delta would drive lot quantity negative")
	case errors.Is(err, domain.ErrUnknownPolicy):
		writeError(w, http.StatusUnprocessableEntity, "unknown_policy", "policy must be FIFO or LIFO")
	case errors.Is(err, domain.ErrDuplicateRequest):
		writeError(w, http.StatusConflict, "duplicate_request", "request already processed")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "concurrent modification, retry the request")
	default:
		log.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Info("request handled")
	})
}
