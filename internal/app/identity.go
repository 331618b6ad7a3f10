package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ravito/ravito-backend/internal/domain"
	"github.com/ravito/ravito-backend/internal/store"
)

const defaultProfileLookupTimeout = 10 * time.Second

// ProfileRepository defines the profile lookups needed to resolve a session.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	GetOrganizationIDForUser(ctx context.Context, userID string) (*string, error)
}

// SessionCache keeps the last session resolved online for each user.
type SessionCache interface {
	GetSession(ctx context.Context, userID string) (*domain.Session, error)
	SetSession(ctx context.Context, session domain.Session) error
	DeleteSession(ctx context.Context, userID string) error
}

// IdentityService resolves the signed-in user's profile.
type IdentityService struct {
	repo          ProfileRepository
	cache         SessionCache
	lookupTimeout time.Duration
	now           func() time.Time
}

// NewIdentityService creates the identity service. cache may be nil.
func NewIdentityService(repo ProfileRepository, cache SessionCache) *IdentityService {
	return &IdentityService{
		repo:          repo,
		cache:         cache,
		lookupTimeout: defaultProfileLookupTimeout,
		now:           time.Now,
	}
}

// CurrentUser resolves userID online first and falls back to the cached session when
// the database cannot answer. A profile the database reports as missing is final: the
// cached copy is evicted and ErrProfileNotFound is returned.
func (s *IdentityService) CurrentUser(ctx context.Context, userID string) (*domain.Session, error) {
	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}

	session, err := s.resolveOnline(ctx, userID)
	if err == nil {
		if s.cache != nil {
			if cacheErr := s.cache.SetSession(ctx, *session); cacheErr != nil {
				log.Printf("level=warn component=identity msg=\"session cache write failed\" user_id=%s err=%v", userID, cacheErr)
			}
		}
		return session, nil
	}

	if errors.Is(err, store.ErrProfileNotFound) {
		s.evict(ctx, userID)
		return nil, err
	}

	if s.cache != nil {
		cached, cacheErr := s.cache.GetSession(ctx, userID)
		if cacheErr == nil {
			log.Printf("level=warn component=identity msg=\"serving cached session\" user_id=%s err=%v", userID, err)
			cached.Source = domain.SessionCache
			return cached, nil
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrProfileUnavailable, err)
}

func (s *IdentityService) resolveOnline(ctx context.Context, userID string) (*domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	var orgID *string
	if profile.Role.OwnsOrganization() {
		orgID, err = s.repo.GetOrganizationIDForUser(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	return &domain.Session{
		Profile:        *profile,
		OrganizationID: orgID,
		Source:         domain.SessionOnline,
		ResolvedAt:     s.now().UTC(),
	}, nil
}

// Logout evicts the cached session of userID.
func (s *IdentityService) Logout(ctx context.Context, userID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.DeleteSession(ctx, userID)
}

func (s *IdentityService) evict(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteSession(ctx, userID); err != nil {
		log.Printf("level=warn component=identity msg=\"session cache evict failed\" user_id=%s err=%v", userID, err)
	}
}

// ActorFromSession builds the actor on whose behalf service operations run.
func ActorFromSession(session *domain.Session) domain.Actor {
	return domain.Actor{
		UserID:         session.Profile.ID,
		Role:           session.Profile.Role,
		OrganizationID: session.OrganizationID,
	}
}
