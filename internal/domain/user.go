/**
 * @description
 * Identity models: profiles, organizations and the post-registration request.
 */
package domain

import "time"

// UserRole defines the role attached to a profile.
type UserRole string

const (
	RoleClient   UserRole = "client"
	RoleSupplier UserRole = "supplier"
	RoleAdmin    UserRole = "admin"
	RoleSalesRep UserRole = "sales_rep"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleClient, RoleSupplier, RoleAdmin, RoleSalesRep:
		return true
	}
	return false
}

// OwnsOrganization reports whether accounts of this role operate an establishment.
func (r UserRole) OwnsOrganization() bool {
	return r == RoleClient || r == RoleSupplier
}

// Profile mirrors a row of the profiles table.
type Profile struct {
	ID                   string    `json:"id"`
	Email                string    `json:"email"`
	Name                 string    `json:"name"`
	Role                 UserRole  `json:"role"`
	Phone                *string   `json:"phone,omitempty"`
	BusinessName         *string   `json:"business_name,omitempty"`
	IsActive             bool      `json:"is_active"`
	RegisteredBySalesRep *string   `json:"registered_by_sales_rep_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Organization is the establishment (CHR or depot) operated by a client or supplier.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      UserRole  `json:"type"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionSource tells where the current user's profile was resolved from.
type SessionSource string

const (
	SessionOnline SessionSource = "online"
	SessionCache  SessionSource = "cache"
)

// Session is the resolved identity of the caller.
type Session struct {
	Profile        Profile       `json:"profile"`
	OrganizationID *string       `json:"organization_id,omitempty"`
	Source         SessionSource `json:"source"`
	ResolvedAt     time.Time     `json:"resolved_at"`
}

// PostRegistrationRequest is the body accepted by the post-registration function.
// The camelCase names are the public contract of the edge function.
type PostRegistrationRequest struct {
	UserID       string   `json:"userId" validate:"required"`
	Email        string   `json:"email" validate:"required,email"`
	Name         string   `json:"name" validate:"required,max=200"`
	Role         UserRole `json:"role" validate:"required,oneof=client supplier admin sales_rep"`
	BusinessName *string  `json:"businessName,omitempty" validate:"omitempty,max=200"`
}

// PostRegistrationResult reports what the idempotent registration created.
type PostRegistrationResult struct {
	ProfileCreated      bool    `json:"profileCreated"`
	OrganizationCreated bool    `json:"organizationCreated"`
	OrganizationID      *string `json:"organizationId,omitempty"`
}

// Actor is the authenticated caller on whose behalf a service operation runs.
type Actor struct {
	UserID         string
	Role           UserRole
	OrganizationID *string
}

// ActorRef is the author recorded on rows written for userID. Operations without a
// user, such as scheduled jobs, record no author.
func ActorRef(userID string) *string {
	if userID == "" {
		return nil
	}
	return &userID
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanAccessOrganization reports whether the actor may read or write data owned by orgID.
func (a Actor) CanAccessOrganization(orgID string) bool {
	if a.IsAdmin() {
		return true
	}
	return a.OrganizationID != nil && *a.OrganizationID == orgID
}
