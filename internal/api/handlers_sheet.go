package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ravito/ravito-backend/internal/domain"
)

type openSheetRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type amountRequest struct {
	Amount int64 `json:"amount" validate:"min=0"`
}

type closeSheetRequest struct {
	ClosingCash *int64  `json:"closing_cash" validate:"required,min=0"`
	Notes       *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

type expenseRequest struct {
	Label    string                 `json:"label" validate:"required,max=200"`
	Amount   int64                  `json:"amount" validate:"gt=0"`
	Category domain.ExpenseCategory `json:"category" validate:"required"`
}

// ListSheetsHandler lists the organization's sheets between ?from and ?to, the last
// 30 days by default.
func (h *Handlers) ListSheetsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	today := h.now().In(h.loc)
	to, err := h.dateParam(r.URL.Query().Get("to"), today)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date")
		return
	}
	from, err := h.dateParam(r.URL.Query().Get("from"), to.AddDate(0, 0, -30))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date")
		return
	}

	sheets, err := h.sheets.ListSheets(r.Context(), actor, from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if sheets == nil {
		sheets = []domain.DailySheet{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"sheets": sheets})
}

// OpenSheetHandler returns the sheet of the requested day, creating it when needed.
func (h *Handlers) OpenSheetHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req openSheetRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	date, err := h.dateParam(req.Date, h.now().In(h.loc))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date")
		return
	}

	details, err := h.sheets.OpenSheet(r.Context(), actor, date)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, details)
}

func (h *Handlers) GetSheetHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	details, err := h.sheets.GetSheetDetails(r.Context(), actor, chi.URLParam(r, "sheetID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, details)
}

func (h *Handlers) UpdateStockLineHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var upd domain.StockLineUpdate
	if !h.decodeAndValidate(w, r, &upd) {
		return
	}
	line, err := h.sheets.UpdateStockLine(r.Context(), actor, chi.URLParam(r, "sheetID"), chi.URLParam(r, "lineID"), upd)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, line)
}

func (h *Handlers) UpdatePackagingHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var upd domain.PackagingUpdate
	if !h.decodeAndValidate(w, r, &upd) {
		return
	}
	line, err := h.sheets.UpdatePackaging(r.Context(), actor, chi.URLParam(r, "sheetID"), chi.URLParam(r, "lineID"), upd)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, line)
}

func (h *Handlers) AddExpenseHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req expenseRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	expense, err := h.sheets.AddExpense(r.Context(), actor, chi.URLParam(r, "sheetID"), domain.ExpenseInput{
		Label:    req.Label,
		Amount:   req.Amount,
		Category: req.Category,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, expense)
}

func (h *Handlers) DeleteExpenseHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.sheets.DeleteExpense(r.Context(), actor, chi.URLParam(r, "sheetID"), chi.URLParam(r, "expenseID")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) UpdateOpeningCashHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	sheet, err := h.sheets.UpdateOpeningCash(r.Context(), actor, chi.URLParam(r, "sheetID"), req.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sheet)
}

// SyncDeliveriesHandler refreshes the RAVITO supply column from delivered orders.
func (h *Handlers) SyncDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	details, err := h.sheets.SyncRavitoDeliveries(r.Context(), actor, chi.URLParam(r, "sheetID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, details)
}

func (h *Handlers) CloseSheetHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req closeSheetRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	details, err := h.sheets.CloseSheet(r.Context(), actor, chi.URLParam(r, "sheetID"), *req.ClosingCash, req.Notes)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, details)
}

func (h *Handlers) ReopenSheetHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	sheet, err := h.sheets.ReopenSheet(r.Context(), actor, chi.URLParam(r, "sheetID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sheet)
}
