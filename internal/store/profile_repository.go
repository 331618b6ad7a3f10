package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ravito/ravito-backend/internal/domain"
)

const profileColumns = `id, email, name, role, phone, business_name, is_active,
		       registered_by_sales_rep_id, created_at, updated_at`

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var p domain.Profile
	if err := row.Scan(
		&p.ID,
		&p.Email,
		&p.Name,
		&p.Role,
		&p.Phone,
		&p.BusinessName,
		&p.IsActive,
		&p.RegisteredBySalesRep,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetProfile loads a profile by user id.
func (r *Repository) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	return scanProfile(r.db.QueryRow(ctx, query, userID))
}

// GetOrganizationIDForUser returns the organization the user belongs to, or nil.
func (r *Repository) GetOrganizationIDForUser(ctx context.Context, userID string) (*string, error) {
	query := `
		SELECT organization_id
		FROM organization_members
		WHERE user_id = $1
		ORDER BY CASE WHEN role = 'owner' THEN 0 ELSE 1 END, created_at
		LIMIT 1
	`
	var orgID string
	if err := r.db.QueryRow(ctx, query, userID).Scan(&orgID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &orgID, nil
}

// ListUserIDsByRole returns the ids of active profiles holding role.
func (r *Repository) ListUserIDsByRole(ctx context.Context, role domain.UserRole) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM profiles WHERE role = $1 AND is_active = TRUE ORDER BY created_at`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// EnsureRegistration creates the profile and, for establishment roles, the owned
// organization and its owner membership. Rows that already exist are left untouched,
// so repeated calls are harmless.
func (r *Repository) EnsureRegistration(ctx context.Context, req domain.PostRegistrationRequest) (*domain.PostRegistrationResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Serialize concurrent registrations of the same user.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, req.UserID); err != nil {
		return nil, fmt.Errorf("failed to lock registration: %w", err)
	}

	result := &domain.PostRegistrationResult{}

	var insertedID string
	err = tx.QueryRow(ctx, `
		INSERT INTO profiles (id, email, name, role, business_name, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (id) DO NOTHING
		RETURNING id
	`, req.UserID, strings.ToLower(strings.TrimSpace(req.Email)), strings.TrimSpace(req.Name), req.Role, req.BusinessName).Scan(&insertedID)
	switch {
	case err == nil:
		result.ProfileCreated = true
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return nil, fmt.Errorf("failed to insert profile: %w", err)
	}

	if req.Role.OwnsOrganization() {
		var orgID string
		err = tx.QueryRow(ctx, `
			SELECT organization_id FROM organization_members
			WHERE user_id = $1 AND role = 'owner'
			LIMIT 1
		`, req.UserID).Scan(&orgID)
		switch {
		case err == nil:
			result.OrganizationID = &orgID
		case errors.Is(err, pgx.ErrNoRows):
			name := strings.TrimSpace(req.Name)
			if req.BusinessName != nil && strings.TrimSpace(*req.BusinessName) != "" {
				name = strings.TrimSpace(*req.BusinessName)
			}
			if err := tx.QueryRow(ctx, `
				INSERT INTO organizations (name, type, owner_id)
				VALUES ($1, $2, $3)
				RETURNING id
			`, name, req.Role, req.UserID).Scan(&orgID); err != nil {
				return nil, fmt.Errorf("failed to insert organization: %w", err)
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO organization_members (organization_id, user_id, role)
				VALUES ($1, $2, 'owner')
			`, orgID, req.UserID); err != nil {
				return nil, fmt.Errorf("failed to insert organization member: %w", err)
			}
			result.OrganizationCreated = true
			result.OrganizationID = &orgID
		default:
			return nil, fmt.Errorf("failed to look up organization: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}
