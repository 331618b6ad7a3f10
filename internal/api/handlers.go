/**
 * @description
 * HTTP handlers of the RAVITO API. Handlers decode and validate requests, call the
 * application services on behalf of the session's actor and map service errors to
 * status codes.
 *
 * @dependencies
 * - github.com/go-playground/validator/v10: request body validation.
 * - internal/app, internal/domain, internal/store: services, models and sentinel errors.
 */
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ravito/ravito-backend/internal/app"
	"github.com/ravito/ravito-backend/internal/commission"
	"github.com/ravito/ravito-backend/internal/domain"
	"github.com/ravito/ravito-backend/internal/realtime"
	"github.com/ravito/ravito-backend/internal/store"
)

const maxRequestBodyBytes = 1 << 20

// Services groups the application services exposed over HTTP.
type Services struct {
	Identity      *app.IdentityService
	Registration  *app.RegistrationService
	Sheets        *app.SheetService
	Credit        *app.CreditService
	Commissions   *app.CommissionService
	Notifications *app.NotificationService
	Hub           *realtime.Hub
}

// Handlers holds the services the handlers use.
type Handlers struct {
	identity      *app.IdentityService
	registration  *app.RegistrationService
	sheets        *app.SheetService
	credit        *app.CreditService
	commissions   *app.CommissionService
	notifications *app.NotificationService
	hub           *realtime.Hub
	validate      *validator.Validate
	loc           *time.Location
	now           func() time.Time
}

// NewHandlers creates the handlers. timezone is the business timezone used to read
// calendar dates from requests.
func NewHandlers(services Services, timezone string) *Handlers {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	return &Handlers{
		identity:      services.Identity,
		registration:  services.Registration,
		sheets:        services.Sheets,
		credit:        services.Credit,
		commissions:   services.Commissions,
		notifications: services.Notifications,
		hub:           services.Hub,
		validate:      validator.New(),
		loc:           loc,
		now:           time.Now,
	}
}

// MeHandler returns the caller's session, resolved online or from the cache.
func (h *Handlers) MeHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	respondWithJSON(w, http.StatusOK, session)
}

// LogoutHandler drops the cached session of the caller.
func (h *Handlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if err := h.identity.Logout(r.Context(), userID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PostRegistrationHandler is the post-registration edge function. A user may only
// register themselves unless the caller is an admin.
func (h *Handlers) PostRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	callerID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req domain.PostRegistrationRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if req.UserID != callerID {
		session, err := h.identity.CurrentUser(r.Context(), callerID)
		if err != nil || session.Profile.Role != domain.RoleAdmin {
			writeError(w, http.StatusForbidden, "Cannot register another user")
			return
		}
	}

	result, err := h.registration.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// NotificationsSocketHandler upgrades the request and streams the caller's
// notifications over a websocket.
func (h *Handlers) NotificationsSocketHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if err := h.hub.Serve(w, r, userID); err != nil {
		log.Printf("level=warn component=api msg=\"websocket upgrade failed\" user_id=%s err=%v", userID, err)
	}
}

func (h *Handlers) actor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return domain.Actor{}, false
	}
	return actor, true
}

// decodeAndValidate decodes the JSON body into dst and runs its validate tags. It
// writes a 400 and returns false on failure.
func (h *Handlers) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// decodeOptional decodes the body when one was sent.
func (h *Handlers) decodeOptional(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	return h.decodeAndValidate(w, r, dst)
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return "Invalid request body"
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, strings.ToLower(fe.Field())+" failed "+fe.Tag())
	}
	return "Invalid request: " + strings.Join(parts, ", ")
}

// periodParam reads ?period=YYYY-MM, defaulting to the current business month.
func (h *Handlers) periodParam(r *http.Request) (domain.Period, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("period"))
	if raw == "" {
		return h.commissions.CurrentPeriod(), nil
	}
	return domain.ParsePeriod(raw)
}

// dateParam parses a YYYY-MM-DD calendar date in the business timezone.
func (h *Handlers) dateParam(raw string, fallback time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return time.ParseInLocation("2006-01-02", raw, h.loc)
}

func parseOptionalPositiveInt(raw string, defaultValue int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, errors.New("must be a positive integer")
	}
	return value, nil
}

func parseOptionalNonNegativeInt(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, errors.New("must be a non-negative integer")
	}
	return value, nil
}

// mapServiceError maps service and store errors to a status code and client message.
func mapServiceError(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrProfileNotFound),
		errors.Is(err, store.ErrSheetNotFound),
		errors.Is(err, store.ErrStockLineNotFound),
		errors.Is(err, store.ErrPackagingNotFound),
		errors.Is(err, store.ErrExpenseNotFound),
		errors.Is(err, store.ErrCustomerNotFound),
		errors.Is(err, store.ErrSalesRepNotFound),
		errors.Is(err, store.ErrPaymentNotFound),
		errors.Is(err, store.ErrNotificationNotFound),
		errors.Is(err, store.ErrSubscriptionNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, app.ErrPaymentLocked),
		errors.Is(err, app.ErrInvalidTransition),
		errors.Is(err, app.ErrNothingToValidate),
		errors.Is(err, app.ErrSheetClosed),
		errors.Is(err, app.ErrSheetNotClosed),
		errors.Is(err, store.ErrSheetNotOpen),
		errors.Is(err, store.ErrPaymentStatusConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, app.ErrCreditLimitExceeded),
		errors.Is(err, app.ErrOverpayment),
		errors.Is(err, app.ErrCustomerFrozen),
		errors.Is(err, commission.ErrInvalidSettings),
		errors.Is(err, commission.ErrInconsistentStats):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidPeriod):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, app.ErrForbidden),
		errors.Is(err, app.ErrNoOrganization):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, commission.ErrConfigurationMissing),
		errors.Is(err, store.ErrSettingsNotFound),
		errors.Is(err, app.ErrProfileUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, message := mapServiceError(err)
	if status == http.StatusInternalServerError {
		log.Printf("level=error component=api msg=\"request failed\" err=%v", err)
	}

	var validationErr *commission.ValidationError
	if errors.As(err, &validationErr) {
		respondWithJSON(w, status, map[string]interface{}{
			"error":      commission.ErrInvalidSettings.Error(),
			"violations": validationErr.Violations,
		})
		return
	}
	writeError(w, status, message)
}

func writeError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Printf("level=error component=api msg=\"failed to marshal response\" err=%v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
