package account

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veyra/authcore/password"
)

// Draft carries the fields needed to create an account. Password arrives in
// plaintext and is hashed here, at the write boundary, before any storage
// call.
type Draft struct {
	Email     string
	Phone     string
	Password  string
	Role      Role
	FirstName string
	LastName  string
	Country   string
}

// Patch is the profile-update allow-list. Nil fields are left untouched.
// Email, role, and every status flag are deliberately absent: they change
// only through their own explicit transitions. DisplayName is derived and
// never accepted from a patch.
type Patch struct {
	FirstName   *string
	LastName    *string
	Phone       *string
	Country     *string
	City        *string
	StoreName   *string
	Description *string
}

// Store owns account semantics over an injected Repository: hashing,
// normalized uniqueness, the patch allow-list, and explicit state
// transitions.
type Store struct {
	repo   Repository
	hasher *password.Hasher
}

// NewStore wires a Store.
func NewStore(repo Repository, hasher *password.Hasher) *Store {
	return &Store{repo: repo, hasher: hasher}
}

// Create hashes the draft password and persists a new unverified account.
// Vendors start in review state pending.
func (s *Store) Create(ctx context.Context, draft Draft) (*Account, error) {
	hash, err := s.hasher.Hash(draft.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	acct := &Account{
		ID:           uuid.NewString(),
		Email:        NormalizeEmail(draft.Email),
		Phone:        strings.TrimSpace(draft.Phone),
		PasswordHash: hash,
		Role:         draft.Role,
		FirstName:    strings.TrimSpace(draft.FirstName),
		LastName:     strings.TrimSpace(draft.LastName),
		Country:      strings.TrimSpace(draft.Country),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	acct.DisplayName = deriveDisplayName(acct)
	if acct.Role == RoleVendor {
		acct.VendorStatus = VendorPending
	}

	if err := s.repo.Create(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// VerifyPassword compares a candidate against the stored hash in constant
// time.
func (s *Store) VerifyPassword(acct *Account, candidate string) (bool, error) {
	return s.hasher.Verify(candidate, acct.PasswordHash)
}

// SetPassword rehashes and persists a new password.
func (s *Store) SetPassword(ctx context.Context, id, plaintext string) (*Account, error) {
	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, func(acct *Account) {
		acct.PasswordHash = hash
	})
}

// UpdateProfile merges the allow-listed patch fields and recomputes derived
// state.
func (s *Store) UpdateProfile(ctx context.Context, id string, patch Patch) (*Account, error) {
	return s.mutate(ctx, id, func(acct *Account) {
		apply := func(dst *string, src *string) {
			if src != nil {
				*dst = strings.TrimSpace(*src)
			}
		}
		apply(&acct.FirstName, patch.FirstName)
		apply(&acct.LastName, patch.LastName)
		apply(&acct.Phone, patch.Phone)
		apply(&acct.Country, patch.Country)
		apply(&acct.City, patch.City)
		apply(&acct.StoreName, patch.StoreName)
		apply(&acct.Description, patch.Description)
		acct.DisplayName = deriveDisplayName(acct)
	})
}

// SetVerified marks the account's verification state.
func (s *Store) SetVerified(ctx context.Context, id string, verified bool) (*Account, error) {
	return s.mutate(ctx, id, func(acct *Account) {
		acct.Verified = verified
	})
}

// SetSuspended flips the suspension flag.
func (s *Store) SetSuspended(ctx context.Context, id string, suspended bool) (*Account, error) {
	return s.mutate(ctx, id, func(acct *Account) {
		acct.Suspended = suspended
	})
}

// SetDeleted flips the soft-delete flag.
func (s *Store) SetDeleted(ctx context.Context, id string, deleted bool) (*Account, error) {
	return s.mutate(ctx, id, func(acct *Account) {
		acct.Deleted = deleted
	})
}

// SetVendorStatus records the external review decision for a vendor.
func (s *Store) SetVendorStatus(ctx context.Context, id string, status VendorStatus) (*Account, error) {
	return s.mutate(ctx, id, func(acct *Account) {
		acct.VendorStatus = status
	})
}

// BumpRevocation atomically increments the account's revocation version,
// invalidating every refresh session issued before the bump.
func (s *Store) BumpRevocation(ctx context.Context, id string) (uint32, error) {
	return s.repo.IncrementRevocation(ctx, id)
}

// ByID fetches an account by id.
func (s *Store) ByID(ctx context.Context, id string) (*Account, error) {
	return s.repo.ByID(ctx, id)
}

// ByEmail fetches an account by email, normalizing first.
func (s *Store) ByEmail(ctx context.Context, email string) (*Account, error) {
	return s.repo.ByEmail(ctx, NormalizeEmail(email))
}

func (s *Store) mutate(ctx context.Context, id string, apply func(*Account)) (*Account, error) {
	acct, err := s.repo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	apply(acct)
	acct.UpdatedAt = time.Now()

	if err := s.repo.Save(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

func deriveDisplayName(acct *Account) string {
	name := strings.TrimSpace(acct.FirstName + " " + acct.LastName)
	if name == "" {
		return acct.Email
	}
	return name
}
