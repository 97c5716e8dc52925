package authcore

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfClassification(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{ErrInvalidRequest, KindValidation},
		{ErrPasswordPolicy, KindValidation},
		{ErrEmailTaken, KindConflict},
		{ErrAlreadyVerified, KindConflict},
		{ErrInvalidCredentials, KindUnauthorized},
		{ErrOTPInvalid, KindUnauthorized},
		{ErrRefreshInvalid, KindUnauthorized},
		{ErrRefreshReuse, KindUnauthorized},
		{ErrUnauthorized, KindUnauthorized},
		{ErrAccountUnverified, KindForbidden},
		{ErrAccountSuspended, KindForbidden},
		{ErrAccountDeleted, KindForbidden},
		{ErrAccountNotFound, KindNotFound},
		{errors.New("database down"), KindInternal},
		{nil, KindInternal},
	}

	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestKindOfSeesWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("load account: %w", ErrAccountSuspended)
	if KindOf(wrapped) != KindForbidden {
		t.Fatalf("wrapped sentinel misclassified: %v", KindOf(wrapped))
	}
}
