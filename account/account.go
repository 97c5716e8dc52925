package account

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Role partitions marketplace accounts.
type Role string

const (
	// RoleCustomer is the default buyer role.
	RoleCustomer Role = "customer"
	// RoleVendor sells on the marketplace and goes through review.
	RoleVendor Role = "vendor"
	// RoleAdmin administers the platform.
	RoleAdmin Role = "admin"
)

// Valid reports whether the role is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleVendor, RoleAdmin:
		return true
	}
	return false
}

// VendorStatus tracks vendor review after profile completion. The approval
// decision is made by an external administrative collaborator.
type VendorStatus string

const (
	// VendorPending awaits review.
	VendorPending VendorStatus = "pending"
	// VendorApproved may trade.
	VendorApproved VendorStatus = "approved"
	// VendorRejected failed review.
	VendorRejected VendorStatus = "rejected"
)

var (
	// ErrEmailTaken is returned when the normalized email already exists.
	ErrEmailTaken = errors.New("email already in use")
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("account not found")
)

// Account is one marketplace identity. PasswordHash is only ever written
// through the hashing boundary; RevocationVersion increments only on
// explicit revoke-all transitions and every increment invalidates all
// refresh sessions issued against earlier values.
type Account struct {
	ID           string
	Email        string
	Phone        string
	PasswordHash string

	Role      Role
	Verified  bool
	Suspended bool
	Deleted   bool

	FirstName   string
	LastName    string
	DisplayName string
	Country     string
	City        string

	StoreName    string
	Description  string
	VendorStatus VendorStatus

	RevocationVersion uint32

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so callers can mutate freely.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	copied := *a
	return &copied
}

// NormalizeEmail lowercases and trims an email address. Uniqueness is
// enforced on the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Repository is the durable store behind the credential layer. The engine
// never talks to it directly; all semantics live in Store. Implementations
// must not retain or mutate the *Account values they receive.
type Repository interface {
	// Create persists a new account, failing with ErrEmailTaken when the
	// normalized email already exists.
	Create(ctx context.Context, acct *Account) error
	// ByID fetches an account by id, ErrNotFound when absent.
	ByID(ctx context.Context, id string) (*Account, error)
	// ByEmail fetches an account by normalized email, ErrNotFound when absent.
	ByEmail(ctx context.Context, email string) (*Account, error)
	// Save replaces the stored record, ErrNotFound when absent.
	Save(ctx context.Context, acct *Account) error
	// IncrementRevocation atomically bumps the revocation version and
	// returns the new value.
	IncrementRevocation(ctx context.Context, id string) (uint32, error)
}
