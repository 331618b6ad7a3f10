package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/ravito/ravito-backend/internal/app"
	"github.com/ravito/ravito-backend/internal/domain"
	"github.com/ravito/ravito-backend/internal/realtime"
	"github.com/ravito/ravito-backend/internal/store"
)

const (
	testSecret   = "test-secret"
	testAudience = "authenticated"
	testAPIKey   = "internal-key"
)

type profileRepoStub struct {
	profiles map[string]domain.Profile
	orgs     map[string]string
	err      error
}

func (s *profileRepoStub) GetProfile(_ context.Context, userID string) (*domain.Profile, error) {
	if s.err != nil {
		return nil, s.err
	}
	profile, ok := s.profiles[userID]
	if !ok {
		return nil, store.ErrProfileNotFound
	}
	return &profile, nil
}

func (s *profileRepoStub) GetOrganizationIDForUser(_ context.Context, userID string) (*string, error) {
	orgID, ok := s.orgs[userID]
	if !ok {
		return nil, nil
	}
	return &orgID, nil
}

type registrationRepoStub struct {
	requests []domain.PostRegistrationRequest
}

func (s *registrationRepoStub) EnsureRegistration(_ context.Context, req domain.PostRegistrationRequest) (*domain.PostRegistrationResult, error) {
	s.requests = append(s.requests, req)
	orgID := "org-" + req.UserID
	return &domain.PostRegistrationResult{ProfileCreated: true, OrganizationCreated: true, OrganizationID: &orgID}, nil
}

type commissionRepoStub struct {
	app.CommissionRepository
}

func (commissionRepoStub) GetCommissionSettings(context.Context) (*domain.SalesCommissionSettings, error) {
	return nil, store.ErrSettingsNotFound
}

func (commissionRepoStub) ListDueValidatedPayments(context.Context, time.Time) ([]domain.SalesCommissionPayment, error) {
	return nil, nil
}

type limiterStub struct {
	count      int
	retryAfter int
	err        error
	subjects   []string
}

func (l *limiterStub) ConsumeRateLimit(_ context.Context, _ string, subject string, _ int, _ time.Duration) (int, int, error) {
	l.subjects = append(l.subjects, subject)
	return l.count, l.retryAfter, l.err
}

type testEnv struct {
	router       http.Handler
	profiles     *profileRepoStub
	registration *registrationRepoStub
	hub          *realtime.Hub
}

func newTestEnv(t *testing.T, limiter app.RateLimiter) *testEnv {
	t.Helper()

	profiles := &profileRepoStub{
		profiles: map[string]domain.Profile{
			"user-client": {ID: "user-client", Role: domain.RoleClient, Name: "Maquis Chez Ali", IsActive: true},
			"user-admin":  {ID: "user-admin", Role: domain.RoleAdmin, Name: "Admin", IsActive: true},
			"user-rep":    {ID: "user-rep", Role: domain.RoleSalesRep, Name: "Awa", IsActive: true},
			"user-off":    {ID: "user-off", Role: domain.RoleClient, Name: "Closed", IsActive: false},
		},
		orgs: map[string]string{"user-client": "org-1"},
	}
	registration := &registrationRepoStub{}
	hub := realtime.NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	done := make(chan struct{})
	go hub.Run(done)
	t.Cleanup(func() { close(done) })

	handlers := NewHandlers(Services{
		Identity:     app.NewIdentityService(profiles, nil),
		Registration: app.NewRegistrationService(registration, nil, nil, "ravito.events"),
		Commissions:  app.NewCommissionService(commissionRepoStub{}, nil, nil, nil, "ravito.events", "Africa/Abidjan"),
		Hub:          hub,
	}, "Africa/Abidjan")

	router := NewRouter(handlers, RouterConfig{
		JWTSecret:          testSecret,
		JWTAudience:        testAudience,
		InternalAPIKey:     testAPIKey,
		RateLimitPerMinute: 120,
	}, limiter)

	return &testEnv{router: router, profiles: profiles, registration: registration, hub: hub}
}

func mintToken(t *testing.T, sub, audience, secret string, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"aud": audience,
		"exp": expiresAt.Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func validToken(t *testing.T, sub string) string {
	return mintToken(t, sub, testAudience, testSecret, time.Now().Add(time.Hour))
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "healthy" {
		t.Fatalf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}
}

func TestAPIRejectsInvalidTokens(t *testing.T) {
	env := newTestEnv(t, nil)
	now := time.Now()

	tests := []struct {
		name  string
		token string
	}{
		{name: "missing", token: ""},
		{name: "wrong secret", token: mintToken(t, "user-client", testAudience, "other-secret", now.Add(time.Hour))},
		{name: "wrong audience", token: mintToken(t, "user-client", "anon", testSecret, now.Add(time.Hour))},
		{name: "expired", token: mintToken(t, "user-client", testAudience, testSecret, now.Add(-time.Minute))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/v1/me", tt.token, nil)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestMeReturnsOnlineSession(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/me", validToken(t, "user-client"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["organization_id"] != "org-1" || body["source"] != string(domain.SessionOnline) {
		t.Fatalf("unexpected session %v", body)
	}
}

func TestSessionFailures(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		repoErr  error
		wantCode int
	}{
		{name: "unknown profile", userID: "user-ghost", wantCode: http.StatusUnauthorized},
		{name: "disabled account", userID: "user-off", wantCode: http.StatusForbidden},
		{name: "database down without cache", userID: "user-client", repoErr: errors.New("connection refused"), wantCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.profiles.err = tt.repoErr

			rec := env.do(t, http.MethodGet, "/api/v1/me", validToken(t, tt.userID), nil)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRoleGates(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name     string
		userID   string
		path     string
		wantCode int
	}{
		{name: "client cannot read commission settings", userID: "user-client", path: "/api/v1/commissions/settings", wantCode: http.StatusForbidden},
		{name: "sales rep cannot read sheets", userID: "user-rep", path: "/api/v1/sheets", wantCode: http.StatusForbidden},
		{name: "admin without settings gets unavailable", userID: "user-admin", path: "/api/v1/commissions/settings", wantCode: http.StatusServiceUnavailable},
		{name: "admin cannot use the rep self view", userID: "user-admin", path: "/api/v1/commissions/me", wantCode: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.path, validToken(t, tt.userID), nil)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestPostRegistration(t *testing.T) {
	business := "Maquis du Plateau"

	tests := []struct {
		name     string
		caller   string
		body     domain.PostRegistrationRequest
		wantCode int
	}{
		{
			name:     "self registration",
			caller:   "user-new",
			body:     domain.PostRegistrationRequest{UserID: "user-new", Email: "new@ravito.ci", Name: "Koffi", Role: domain.RoleClient, BusinessName: &business},
			wantCode: http.StatusOK,
		},
		{
			name:     "admin registers someone else",
			caller:   "user-admin",
			body:     domain.PostRegistrationRequest{UserID: "user-other", Email: "other@ravito.ci", Name: "Yao", Role: domain.RoleSupplier},
			wantCode: http.StatusOK,
		},
		{
			name:     "client cannot register someone else",
			caller:   "user-client",
			body:     domain.PostRegistrationRequest{UserID: "user-other", Email: "other@ravito.ci", Name: "Yao", Role: domain.RoleSupplier},
			wantCode: http.StatusForbidden,
		},
		{
			name:     "unknown role",
			caller:   "user-new",
			body:     domain.PostRegistrationRequest{UserID: "user-new", Email: "new@ravito.ci", Name: "Koffi", Role: "driver"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "malformed email",
			caller:   "user-new",
			body:     domain.PostRegistrationRequest{UserID: "user-new", Email: "not-an-email", Name: "Koffi", Role: domain.RoleClient},
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			rec := env.do(t, http.MethodPost, "/functions/v1/post-registration", validToken(t, tt.caller), tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				if len(env.registration.requests) != 0 {
					t.Fatalf("expected no registration, got %d", len(env.registration.requests))
				}
				return
			}
			body := decodeBody(t, rec)
			if body["profileCreated"] != true || body["organizationId"] != "org-"+tt.body.UserID {
				t.Fatalf("unexpected camelCase result %v", body)
			}
		})
	}
}

func TestInternalRoutesRequireKey(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/internal/commissions/reminders", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/internal/commissions/reminders", nil)
	req.Header.Set("X-Internal-API-Key", testAPIKey)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["due_payments"] != float64(0) {
		t.Fatalf("unexpected reminder result %v", body)
	}
}

func TestInternalSnapshotRejectsBadPeriod(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/internal/commissions/snapshot", strings.NewReader(`{"period":"2024-13"}`))
	req.Header.Set("X-Internal-API-Key", testAPIKey)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRateLimitReturnsRetryAfter(t *testing.T) {
	limiter := &limiterStub{count: 121, retryAfter: 30}
	env := newTestEnv(t, limiter)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+validToken(t, "user-client"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("expected Retry-After 30, got %q", got)
	}
	if len(limiter.subjects) != 1 || limiter.subjects[0] != "user:user-client" {
		t.Fatalf("expected the token's user as subject, got %v", limiter.subjects)
	}
}

func TestRateLimitKeysAnonymousCallersByIP(t *testing.T) {
	limiter := &limiterStub{count: 1}
	handler := RateLimitMiddleware(limiter, "api", 10, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:5120"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected the request through, got %d", rec.Code)
	}
	if len(limiter.subjects) != 1 || limiter.subjects[0] != "ip:198.51.100.4" {
		t.Fatalf("expected the client IP as subject, got %v", limiter.subjects)
	}
}

func TestRateLimiterFailureLetsRequestsThrough(t *testing.T) {
	env := newTestEnv(t, &limiterStub{err: errors.New("redis down")})

	rec := env.do(t, http.MethodGet, "/api/v1/me", validToken(t, "user-client"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestNotificationSocketAcceptsQueryToken(t *testing.T) {
	env := newTestEnv(t, nil)
	server := httptest.NewServer(env.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/notifications?token=" + validToken(t, "user-client")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	var welcome map[string]string
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("failed to read welcome frame: %v", err)
	}
	if welcome["user_id"] != "user-client" {
		t.Fatalf("unexpected welcome frame %v", welcome)
	}

	if _, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws/notifications?token="+validToken(t, "user-off"), nil); err == nil {
		t.Fatalf("expected dial of a disabled account to fail")
	} else if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for a disabled account, got %v", resp)
	}

	if _, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws/notifications", nil); err == nil {
		t.Fatalf("expected dial without token to fail")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %v", resp)
	}
}
