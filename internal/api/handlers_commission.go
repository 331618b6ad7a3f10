package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ravito/ravito-backend/internal/app"
	"github.com/ravito/ravito-backend/internal/commission"
	"github.com/ravito/ravito-backend/internal/domain"
)

type periodRequest struct {
	Period string `json:"period" validate:"omitempty,datetime=2006-01"`
}

type objectiveRequest struct {
	SalesRepID      string `json:"sales_rep_id" validate:"required"`
	Period          string `json:"period" validate:"required,datetime=2006-01"`
	ObjectiveChr    int    `json:"objective_chr" validate:"min=0"`
	ObjectiveDepots int    `json:"objective_depots" validate:"min=0"`
}

type markPaidRequest struct {
	Reference *string `json:"reference,omitempty" validate:"omitempty,max=200"`
}

// bodyPeriod resolves the period of a write request: the body's period, then
// ?period, then the current month.
func (h *Handlers) bodyPeriod(w http.ResponseWriter, r *http.Request) (domain.Period, bool) {
	var req periodRequest
	if !h.decodeOptional(w, r, &req) {
		return domain.Period{}, false
	}
	if raw := strings.TrimSpace(req.Period); raw != "" {
		period, err := domain.ParsePeriod(raw)
		if err != nil {
			writeServiceError(w, err)
			return domain.Period{}, false
		}
		return period, true
	}
	period, err := h.periodParam(r)
	if err != nil {
		writeServiceError(w, err)
		return domain.Period{}, false
	}
	return period, true
}

func (h *Handlers) queryPeriod(w http.ResponseWriter, r *http.Request) (domain.Period, bool) {
	period, err := h.periodParam(r)
	if err != nil {
		writeServiceError(w, err)
		return domain.Period{}, false
	}
	return period, true
}

// GetCommissionSettingsHandler returns the commission settings singleton.
func (h *Handlers) GetCommissionSettingsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := h.commissions.Settings(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, settings)
}

// UpdateCommissionSettingsHandler applies a partial settings update. Violations are
// returned with a 422.
func (h *Handlers) UpdateCommissionSettingsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var patch commission.SettingsPatch
	if !h.decodeAndValidate(w, r, &patch) {
		return
	}
	settings, err := h.commissions.UpdateSettings(r.Context(), patch, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, settings)
}

// PeriodStatsHandler returns the ranked activity stats of every representative.
func (h *Handlers) PeriodStatsHandler(w http.ResponseWriter, r *http.Request) {
	period, ok := h.queryPeriod(w, r)
	if !ok {
		return
	}
	stats, err := h.commissions.PeriodStats(r.Context(), period)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if stats == nil {
		stats = []domain.CommercialActivityStats{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"period": period, "stats": stats})
}

func (h *Handlers) PeriodOverviewHandler(w http.ResponseWriter, r *http.Request) {
	period, ok := h.queryPeriod(w, r)
	if !ok {
		return
	}
	overview, err := h.commissions.PeriodOverview(r.Context(), period)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if overview == nil {
		overview = []domain.CommissionOverview{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"period": period, "overview": overview})
}

func (h *Handlers) RepOverviewHandler(w http.ResponseWriter, r *http.Request) {
	period, ok := h.queryPeriod(w, r)
	if !ok {
		return
	}
	overview, err := h.commissions.RepOverview(r.Context(), chi.URLParam(r, "repID"), period)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, overview)
}

func (h *Handlers) RepPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	payments, err := h.commissions.ListRepPayments(r.Context(), chi.URLParam(r, "repID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondPayments(w, payments)
}

// MyCommissionHandler returns the calling representative's own overview.
func (h *Handlers) MyCommissionHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	period, ok := h.queryPeriod(w, r)
	if !ok {
		return
	}
	overview, err := h.commissions.MyOverview(r.Context(), actor, period)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, overview)
}

func (h *Handlers) MyCommissionPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	payments, err := h.commissions.MyPayments(r.Context(), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondPayments(w, payments)
}

func (h *Handlers) SetObjectiveHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req objectiveRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	period, err := domain.ParsePeriod(req.Period)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	objective := domain.SalesObjective{
		SalesRepID:      req.SalesRepID,
		Year:            period.Year,
		Month:           period.Month,
		ObjectiveChr:    req.ObjectiveChr,
		ObjectiveDepots: req.ObjectiveDepots,
	}
	if err := h.commissions.SetObjective(r.Context(), actor, objective); err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, objective)
}

// SaveCalculationHandler freezes a representative's estimation into a pending payment.
func (h *Handlers) SaveCalculationHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	period, ok := h.bodyPeriod(w, r)
	if !ok {
		return
	}
	payment, err := h.commissions.SaveCalculation(r.Context(), chi.URLParam(r, "repID"), period, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, payment)
}

// ValidatePeriodHandler validates every pending payment of the period.
func (h *Handlers) ValidatePeriodHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	period, ok := h.bodyPeriod(w, r)
	if !ok {
		return
	}
	payments, err := h.commissions.ValidatePeriod(r.Context(), period, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondPayments(w, payments)
}

func (h *Handlers) ListPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	period, ok := h.queryPeriod(w, r)
	if !ok {
		return
	}
	payments, err := h.commissions.ListPayments(r.Context(), period)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondPayments(w, payments)
}

func (h *Handlers) GetPaymentHandler(w http.ResponseWriter, r *http.Request) {
	payment, err := h.commissions.GetPayment(r.Context(), chi.URLParam(r, "paymentID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, payment)
}

// MarkPaidHandler records the payout of a validated payment.
func (h *Handlers) MarkPaidHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req markPaidRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	payment, err := h.commissions.MarkPaid(r.Context(), chi.URLParam(r, "paymentID"), req.Reference, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, payment)
}

// InternalSnapshotHandler saves pending calculations for every active representative.
// The period defaults to the month before the current one.
func (h *Handlers) InternalSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	var req periodRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	period := h.commissions.CurrentPeriod().Previous()
	if raw := strings.TrimSpace(req.Period); raw != "" {
		parsed, err := domain.ParsePeriod(raw)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		period = parsed
	}

	result, err := h.commissions.SnapshotPeriod(r.Context(), period, app.SystemActor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// InternalRemindersHandler notifies admins of validated payments that are due.
func (h *Handlers) InternalRemindersHandler(w http.ResponseWriter, r *http.Request) {
	result, err := h.commissions.SendPaymentReminders(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func respondPayments(w http.ResponseWriter, payments []domain.SalesCommissionPayment) {
	if payments == nil {
		payments = []domain.SalesCommissionPayment{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"payments": payments})
}
