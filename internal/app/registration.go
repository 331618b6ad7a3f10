package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ravito/ravito-backend/internal/domain"
)

// RegistrationRepository creates the rows that follow a BaaS sign-up.
type RegistrationRepository interface {
	EnsureRegistration(ctx context.Context, req domain.PostRegistrationRequest) (*domain.PostRegistrationResult, error)
}

// RegistrationService backs the post-registration function.
type RegistrationService struct {
	repo     RegistrationRepository
	notifier Notifier
	events   events
}

// NewRegistrationService creates the registration service.
func NewRegistrationService(repo RegistrationRepository, notifier Notifier, publisher EventPublisher, exchange string) *RegistrationService {
	return &RegistrationService{repo: repo, notifier: notifier, events: events{publisher: publisher, exchange: exchange}}
}

// Register ensures the profile and, for CHRs and depots, the owned organization exist.
// Calling it again for the same user creates nothing and returns the existing
// organization id.
func (s *RegistrationService) Register(ctx context.Context, req domain.PostRegistrationRequest) (*domain.PostRegistrationResult, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if req.UserID == "" || req.Email == "" || req.Name == "" {
		return nil, fmt.Errorf("%w: userId, email and name are required", ErrInvalidInput)
	}
	if !req.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, req.Role)
	}

	result, err := s.repo.EnsureRegistration(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to register user %s: %w", req.UserID, err)
	}

	if !result.ProfileCreated && !result.OrganizationCreated {
		return result, nil
	}

	log.Printf("Registration: user %s (%s) profile_created=%v organization_created=%v", req.UserID, req.Role, result.ProfileCreated, result.OrganizationCreated)

	s.events.publish(ctx, domain.EventProfileRegistered, domain.ProfileRegisteredEvent{
		UserID:         req.UserID,
		Role:           req.Role,
		OrganizationID: result.OrganizationID,
		Timestamp:      time.Now().UTC(),
	})

	if result.ProfileCreated {
		notify(ctx, s.notifier, domain.Notification{
			UserID:  req.UserID,
			Type:    domain.NotificationWelcome,
			Title:   "Bienvenue sur RAVITO",
			Message: fmt.Sprintf("Bonjour %s, votre compte est prêt.", req.Name),
		})
	}

	return result, nil
}
