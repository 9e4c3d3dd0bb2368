package auth

import (
	"strings"
	"time"
)

// Role determines which route namespaces a profile may enter and where it lands by default.
type Role string

const (
	RoleUnknown      Role = ""
	RoleAdmin        Role = "admin"
	RoleSalesManager Role = "sales_manager"
	RoleRecruiter    Role = "recruiter"
)

// Roles lists every assignable role, highest privilege first.
var Roles = []Role{RoleAdmin, RoleSalesManager, RoleRecruiter}

// ParseRole normalises raw input into a known role. Unrecognised values map to RoleUnknown.
func ParseRole(raw string) Role {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleSalesManager:
		return RoleSalesManager
	case RoleRecruiter:
		return RoleRecruiter
	default:
		return RoleUnknown
	}
}

// Valid reports whether r is one of the assignable roles.
func (r Role) Valid() bool {
	return ParseRole(string(r)) != RoleUnknown
}

// Label is the human readable name shown in the workspace UI.
func (r Role) Label() string {
	switch r {
	case RoleAdmin:
		return "Administrator"
	case RoleSalesManager:
		return "Sales Manager"
	case RoleRecruiter:
		return "Recruiter"
	default:
		return "Unknown"
	}
}

func (r Role) String() string { return string(r) }

// Status is the account lifecycle state. Only active accounts pass the gate.
type Status string

const (
	StatusUnknown  Status = ""
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusPending  Status = "pending"
	StatusInvited  Status = "invited"
)

// ParseStatus normalises raw input into a known status. Unrecognised values map to StatusUnknown.
func ParseStatus(raw string) Status {
	switch Status(strings.TrimSpace(strings.ToLower(raw))) {
	case StatusActive:
		return StatusActive
	case StatusInactive:
		return StatusInactive
	case StatusPending:
		return StatusPending
	case StatusInvited:
		return StatusInvited
	default:
		return StatusUnknown
	}
}

func (s Status) String() string { return string(s) }

// Identity is the externally verified user as reported by the identity provider.
type Identity struct {
	UserID    string
	Email     string
	SessionID string
}

// Profile extends an identity with workspace role, status and organisation fields.
type Profile struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Role       Role      `json:"role"`
	Status     Status    `json:"status"`
	Department string    `json:"department,omitempty"`
	Team       string    `json:"team,omitempty"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
	CreatedBy  string    `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Active reports whether the profile may use protected routes.
func (p *Profile) Active() bool {
	return p != nil && p.Status == StatusActive
}

// DisplayName joins first and last name, falling back to the email.
func (p *Profile) DisplayName() string {
	if p == nil {
		return ""
	}
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		return p.Email
	}
	return name
}

// InvitationStatus tracks token based invitations and registration requests.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
)

// InvitationTTL is how long an invitation token stays valid after creation.
const InvitationTTL = 7 * 24 * time.Hour

// Invitation is an administrator issued, time limited offer to join the workspace.
type Invitation struct {
	ID         string
	Email      string
	Role       Role
	FirstName  string
	LastName   string
	Department string
	Team       string
	InvitedBy  string
	Token      string
	Status     InvitationStatus
	ExpiresAt  time.Time
	CreatedAt  time.Time
	AcceptedAt *time.Time
}

// Expired reports whether the invitation can no longer be accepted at now.
func (i Invitation) Expired(now time.Time) bool {
	if i.Status == InvitationExpired {
		return true
	}
	return i.Status == InvitationPending && !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// RegistrationRequest is a self-service access request awaiting administrator approval.
type RegistrationRequest struct {
	ID         string
	Email      string
	FirstName  string
	LastName   string
	Role       Role
	Department string
	Reason     string
	Status     InvitationStatus
	CreatedAt  time.Time
}
