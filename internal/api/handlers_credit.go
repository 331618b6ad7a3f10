package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ravito/ravito-backend/internal/domain"
)

type creditMovementRequest struct {
	Amount int64   `json:"amount" validate:"gt=0"`
	Notes  *string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

type freezeRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// ListCreditCustomersHandler supports ?status=active|frozen, ?search= and
// ?with_balance=true.
func (h *Handlers) ListCreditCustomersHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := domain.CreditCustomerFilter{
		Status:      domain.CreditStatus(strings.TrimSpace(query.Get("status"))),
		Search:      strings.TrimSpace(query.Get("search")),
		WithBalance: query.Get("with_balance") == "true",
	}
	if filter.Status != "" && filter.Status != domain.CreditActive && filter.Status != domain.CreditFrozen {
		writeError(w, http.StatusBadRequest, "Invalid status filter")
		return
	}

	customers, err := h.credit.ListCustomers(r.Context(), actor, filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if customers == nil {
		customers = []domain.CreditCustomer{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"customers": customers})
}

func (h *Handlers) CreateCreditCustomerHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req domain.CreditCustomerInput
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	customer, err := h.credit.CreateCustomer(r.Context(), actor, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, customer)
}

func (h *Handlers) GetCreditCustomerHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	customer, err := h.credit.GetCustomer(r.Context(), actor, chi.URLParam(r, "customerID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, customer)
}

func (h *Handlers) ListCreditTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	limit, err := parseOptionalPositiveInt(r.URL.Query().Get("limit"), 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit: "+err.Error())
		return
	}
	offset, err := parseOptionalNonNegativeInt(r.URL.Query().Get("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid offset: "+err.Error())
		return
	}

	transactions, err := h.credit.ListTransactions(r.Context(), actor, chi.URLParam(r, "customerID"), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if transactions == nil {
		transactions = []domain.CreditTransaction{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"transactions": transactions})
}

// RecordConsumptionHandler charges a consumption to the customer's account.
func (h *Handlers) RecordConsumptionHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req creditMovementRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	movement, err := h.credit.RecordConsumption(r.Context(), actor, chi.URLParam(r, "customerID"), req.Amount, req.Notes)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, movement)
}

// RecordPaymentHandler credits a repayment to the customer's account.
func (h *Handlers) RecordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req creditMovementRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	movement, err := h.credit.RecordPayment(r.Context(), actor, chi.URLParam(r, "customerID"), req.Amount, req.Notes)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, movement)
}

func (h *Handlers) FreezeCreditCustomerHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req freezeRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	customer, err := h.credit.FreezeCustomer(r.Context(), actor, chi.URLParam(r, "customerID"), req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, customer)
}

func (h *Handlers) UnfreezeCreditCustomerHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	customer, err := h.credit.UnfreezeCustomer(r.Context(), actor, chi.URLParam(r, "customerID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, customer)
}
