/**
 * @description
 * HTTP router of the RAVITO API: the post-registration function, the authenticated
 * /api/v1 surface, the notification websocket and the internal routes called by the
 * scheduler.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: routing and standard middleware.
 * - github.com/go-chi/cors: CORS for the PWA.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ravito/ravito-backend/internal/app"
	"github.com/ravito/ravito-backend/internal/domain"
)

// RouterConfig carries the security settings of the router.
type RouterConfig struct {
	JWTSecret          string
	JWTAudience        string
	InternalAPIKey     string
	AllowedOrigins     []string
	RateLimitPerMinute int
}

// NewRouter wires every route of the API.
func NewRouter(h *Handlers, cfg RouterConfig, limiter app.RateLimiter) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	jwtAuth := JWTAuthMiddleware(cfg.JWTSecret, cfg.JWTAudience)
	session := SessionMiddleware(h.identity)
	rateLimit := RateLimitMiddleware(limiter, "api", cfg.RateLimitPerMinute, time.Minute)
	registrationLimit := RateLimitMiddleware(limiter, "registration", cfg.RateLimitPerMinute, time.Minute)

	// Long-lived connection: no request timeout.
	r.With(jwtAuth, session).Get("/ws/notifications", h.NotificationsSocketHandler)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.With(jwtAuth, registrationLimit).Post("/functions/v1/post-registration", h.PostRegistrationHandler)

		r.Route("/internal", func(r chi.Router) {
			r.Use(InternalAuthMiddleware(cfg.InternalAPIKey))
			r.Post("/commissions/snapshot", h.InternalSnapshotHandler)
			r.Post("/commissions/reminders", h.InternalRemindersHandler)
		})

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(jwtAuth)
			r.Use(rateLimit)
			r.Use(session)

			r.Get("/me", h.MeHandler)
			r.Post("/logout", h.LogoutHandler)

			r.Route("/sheets", func(r chi.Router) {
				r.Use(RequireRole(domain.RoleClient, domain.RoleSupplier, domain.RoleAdmin))
				r.Get("/", h.ListSheetsHandler)
				r.Post("/", h.OpenSheetHandler)
				r.Get("/{sheetID}", h.GetSheetHandler)
				r.Put("/{sheetID}/stock-lines/{lineID}", h.UpdateStockLineHandler)
				r.Put("/{sheetID}/packaging/{lineID}", h.UpdatePackagingHandler)
				r.Post("/{sheetID}/expenses", h.AddExpenseHandler)
				r.Delete("/{sheetID}/expenses/{expenseID}", h.DeleteExpenseHandler)
				r.Put("/{sheetID}/opening-cash", h.UpdateOpeningCashHandler)
				r.Post("/{sheetID}/sync-deliveries", h.SyncDeliveriesHandler)
				r.Post("/{sheetID}/close", h.CloseSheetHandler)
				r.With(RequireRole(domain.RoleAdmin)).Post("/{sheetID}/reopen", h.ReopenSheetHandler)
			})

			r.Route("/credit/customers", func(r chi.Router) {
				r.Use(RequireRole(domain.RoleClient, domain.RoleSupplier, domain.RoleAdmin))
				r.Get("/", h.ListCreditCustomersHandler)
				r.Post("/", h.CreateCreditCustomerHandler)
				r.Get("/{customerID}", h.GetCreditCustomerHandler)
				r.Get("/{customerID}/transactions", h.ListCreditTransactionsHandler)
				r.Post("/{customerID}/consumptions", h.RecordConsumptionHandler)
				r.Post("/{customerID}/payments", h.RecordPaymentHandler)
				r.Post("/{customerID}/freeze", h.FreezeCreditCustomerHandler)
				r.Post("/{customerID}/unfreeze", h.UnfreezeCreditCustomerHandler)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", h.ListNotificationsHandler)
				r.Get("/unread-count", h.UnreadCountHandler)
				r.Post("/read-all", h.MarkAllNotificationsReadHandler)
				r.Post("/{notificationID}/read", h.MarkNotificationReadHandler)
				r.Delete("/{notificationID}", h.DeleteNotificationHandler)
			})

			r.Post("/push-subscriptions", h.SubscribePushHandler)
			r.Delete("/push-subscriptions", h.UnsubscribePushHandler)

			r.Route("/commissions", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(RequireRole(domain.RoleSalesRep))
					r.Get("/me", h.MyCommissionHandler)
					r.Get("/me/payments", h.MyCommissionPaymentsHandler)
				})

				r.Group(func(r chi.Router) {
					r.Use(RequireRole(domain.RoleAdmin))
					r.Get("/settings", h.GetCommissionSettingsHandler)
					r.Patch("/settings", h.UpdateCommissionSettingsHandler)
					r.Get("/stats", h.PeriodStatsHandler)
					r.Get("/overview", h.PeriodOverviewHandler)
					r.Put("/objectives", h.SetObjectiveHandler)
					r.Get("/reps/{repID}", h.RepOverviewHandler)
					r.Get("/reps/{repID}/payments", h.RepPaymentsHandler)
					r.Post("/reps/{repID}/save", h.SaveCalculationHandler)
					r.Post("/validate", h.ValidatePeriodHandler)
					r.Get("/payments", h.ListPaymentsHandler)
					r.Get("/payments/{paymentID}", h.GetPaymentHandler)
					r.Post("/payments/{paymentID}/pay", h.MarkPaidHandler)
				})
			})
		})
	})

	return r
}
