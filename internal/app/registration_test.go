package app

import (
	"context"
	"errors"
	"testing"

	"github.com/ravito/ravito-backend/internal/domain"
)

// registrationRepoStub mimics the idempotent upsert: the first call creates, later
// calls find the existing rows.
type registrationRepoStub struct {
	profiles map[string]bool
	orgs     map[string]string
	calls    int
}

func newRegistrationRepoStub() *registrationRepoStub {
	return &registrationRepoStub{profiles: map[string]bool{}, orgs: map[string]string{}}
}

func (s *registrationRepoStub) EnsureRegistration(ctx context.Context, req domain.PostRegistrationRequest) (*domain.PostRegistrationResult, error) {
	s.calls++
	result := &domain.PostRegistrationResult{}
	if !s.profiles[req.UserID] {
		s.profiles[req.UserID] = true
		result.ProfileCreated = true
	}
	if req.Role.OwnsOrganization() {
		orgID, ok := s.orgs[req.UserID]
		if !ok {
			orgID = "org-" + req.UserID
			s.orgs[req.UserID] = orgID
			result.OrganizationCreated = true
		}
		result.OrganizationID = &orgID
	}
	return result, nil
}

type publisherStub struct {
	routingKeys []string
	bodies      []interface{}
	err         error
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.routingKeys = append(p.routingKeys, routingKey)
	p.bodies = append(p.bodies, body)
	return p.err
}

type notifierStub struct {
	sent []domain.Notification
	err  error
}

func (n *notifierStub) Notify(ctx context.Context, notification domain.Notification) (*domain.Notification, error) {
	if n.err != nil {
		return nil, n.err
	}
	n.sent = append(n.sent, notification)
	return &notification, nil
}

func TestRegisterIsIdempotent(t *testing.T) {
	repo := newRegistrationRepoStub()
	publisher := &publisherStub{}
	notifier := &notifierStub{}
	svc := NewRegistrationService(repo, notifier, publisher, "ravito.events")

	req := domain.PostRegistrationRequest{
		UserID:       "u1",
		Email:        "bar@example.com",
		Name:         "Maquis Chez Awa",
		Role:         domain.RoleClient,
		BusinessName: strPtr("Chez Awa"),
	}

	first, err := svc.Register(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.ProfileCreated || !first.OrganizationCreated {
		t.Fatalf("expected first call to create profile and organization, got %+v", first)
	}

	second, err := svc.Register(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ProfileCreated || second.OrganizationCreated {
		t.Fatalf("expected second call to create nothing, got %+v", second)
	}
	if second.OrganizationID == nil || *second.OrganizationID != *first.OrganizationID {
		t.Fatalf("expected same organization id, got %v", second.OrganizationID)
	}

	if len(publisher.routingKeys) != 1 || publisher.routingKeys[0] != domain.EventProfileRegistered {
		t.Fatalf("expected one profile.registered event, got %v", publisher.routingKeys)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Type != domain.NotificationWelcome {
		t.Fatalf("expected one welcome notification, got %+v", notifier.sent)
	}
}

func TestRegisterAdminHasNoOrganization(t *testing.T) {
	svc := NewRegistrationService(newRegistrationRepoStub(), nil, nil, "ravito.events")

	result, err := svc.Register(context.Background(), domain.PostRegistrationRequest{
		UserID: "a1", Email: "admin@example.com", Name: "Admin", Role: domain.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OrganizationCreated || result.OrganizationID != nil {
		t.Fatalf("expected no organization for admin, got %+v", result)
	}
}

func TestRegisterRejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		req  domain.PostRegistrationRequest
	}{
		{name: "missing user id", req: domain.PostRegistrationRequest{Email: "a@b.c", Name: "A", Role: domain.RoleClient}},
		{name: "blank name", req: domain.PostRegistrationRequest{UserID: "u", Email: "a@b.c", Name: "   ", Role: domain.RoleClient}},
		{name: "unknown role", req: domain.PostRegistrationRequest{UserID: "u", Email: "a@b.c", Name: "A", Role: "driver"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newRegistrationRepoStub()
			svc := NewRegistrationService(repo, nil, nil, "ravito.events")
			if _, err := svc.Register(context.Background(), tt.req); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if repo.calls != 0 {
				t.Fatalf("expected repository not to be called")
			}
		})
	}
}
