package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ravito/ravito-backend/internal/cache"
	"github.com/ravito/ravito-backend/internal/domain"
	"github.com/ravito/ravito-backend/internal/store"
)

type profileRepoStub struct {
	profile    *domain.Profile
	profileErr error
	orgID      *string
	orgErr     error
	sawTimeout bool
}

func (s *profileRepoStub) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	_, s.sawTimeout = ctx.Deadline()
	if s.profileErr != nil {
		return nil, s.profileErr
	}
	p := *s.profile
	return &p, nil
}

func (s *profileRepoStub) GetOrganizationIDForUser(ctx context.Context, userID string) (*string, error) {
	return s.orgID, s.orgErr
}

type sessionCacheStub struct {
	sessions map[string]domain.Session
	deleted  []string
}

func newSessionCacheStub() *sessionCacheStub {
	return &sessionCacheStub{sessions: map[string]domain.Session{}}
}

func (s *sessionCacheStub) GetSession(ctx context.Context, userID string) (*domain.Session, error) {
	session, ok := s.sessions[userID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return &session, nil
}

func (s *sessionCacheStub) SetSession(ctx context.Context, session domain.Session) error {
	s.sessions[session.Profile.ID] = session
	return nil
}

func (s *sessionCacheStub) DeleteSession(ctx context.Context, userID string) error {
	s.deleted = append(s.deleted, userID)
	delete(s.sessions, userID)
	return nil
}

func strPtr(v string) *string { return &v }

func TestCurrentUserOnlineCachesSession(t *testing.T) {
	repo := &profileRepoStub{
		profile: &domain.Profile{ID: "u1", Name: "Awa", Role: domain.RoleClient},
		orgID:   strPtr("org-1"),
	}
	sessions := newSessionCacheStub()
	svc := NewIdentityService(repo, sessions)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }

	session, err := svc.CurrentUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Source != domain.SessionOnline {
		t.Fatalf("expected online source, got %s", session.Source)
	}
	if session.OrganizationID == nil || *session.OrganizationID != "org-1" {
		t.Fatalf("expected organization org-1, got %v", session.OrganizationID)
	}
	if !repo.sawTimeout {
		t.Fatalf("expected profile lookup to run with a deadline")
	}
	if _, ok := sessions.sessions["u1"]; !ok {
		t.Fatalf("expected session to be cached")
	}
}

func TestCurrentUserFallsBackToCache(t *testing.T) {
	repo := &profileRepoStub{profileErr: errors.New("connection refused")}
	sessions := newSessionCacheStub()
	sessions.sessions["u1"] = domain.Session{
		Profile: domain.Profile{ID: "u1", Role: domain.RoleSupplier},
		Source:  domain.SessionOnline,
	}
	svc := NewIdentityService(repo, sessions)

	session, err := svc.CurrentUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Source != domain.SessionCache {
		t.Fatalf("expected cache source, got %s", session.Source)
	}
}

func TestCurrentUserFailsWithoutCache(t *testing.T) {
	dbErr := errors.New("connection refused")
	svc := NewIdentityService(&profileRepoStub{profileErr: dbErr}, newSessionCacheStub())

	_, err := svc.CurrentUser(context.Background(), "u1")
	if !errors.Is(err, ErrProfileUnavailable) {
		t.Fatalf("expected ErrProfileUnavailable, got %v", err)
	}
	if !errors.Is(err, dbErr) {
		t.Fatalf("expected original error to be wrapped, got %v", err)
	}
}

func TestCurrentUserMissingProfileEvictsCache(t *testing.T) {
	sessions := newSessionCacheStub()
	sessions.sessions["u1"] = domain.Session{Profile: domain.Profile{ID: "u1"}}
	svc := NewIdentityService(&profileRepoStub{profileErr: store.ErrProfileNotFound}, sessions)

	_, err := svc.CurrentUser(context.Background(), "u1")
	if !errors.Is(err, store.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
	if _, ok := sessions.sessions["u1"]; ok {
		t.Fatalf("expected cached session to be evicted")
	}
}

func TestCurrentUserSkipsOrganizationForAdmins(t *testing.T) {
	repo := &profileRepoStub{
		profile: &domain.Profile{ID: "a1", Role: domain.RoleAdmin},
		orgErr:  errors.New("must not be called"),
	}
	svc := NewIdentityService(repo, nil)

	session, err := svc.CurrentUser(context.Background(), "a1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.OrganizationID != nil {
		t.Fatalf("expected no organization for admin")
	}
}

func TestLogoutEvictsSession(t *testing.T) {
	sessions := newSessionCacheStub()
	sessions.sessions["u1"] = domain.Session{Profile: domain.Profile{ID: "u1"}}
	svc := NewIdentityService(&profileRepoStub{}, sessions)

	if err := svc.Logout(context.Background(), "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sessions.deleted) != 1 || sessions.deleted[0] != "u1" {
		t.Fatalf("expected u1 to be evicted, got %v", sessions.deleted)
	}
}
