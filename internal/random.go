package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

const (
	refreshSecretSize   = 32
	refreshTokenRawSize = 16 + refreshSecretSize
)

// NewRefreshSecret returns a fresh 256-bit refresh secret.
func NewRefreshSecret() ([refreshSecretSize]byte, error) {
	var secret [refreshSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashRefreshSecret derives the server-side stored form of a refresh secret.
// Only the hash is persisted; the secret itself travels inside the token.
func HashRefreshSecret(secret [refreshSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeRefreshToken packs the 16-byte account id and the refresh secret
// into one opaque base64url token.
func EncodeRefreshToken(accountID [16]byte, secret [refreshSecretSize]byte) string {
	var raw [refreshTokenRawSize]byte
	copy(raw[:len(accountID)], accountID[:])
	copy(raw[len(accountID):], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:])
}

// DecodeRefreshToken splits an opaque refresh token back into account id
// and secret. Any malformed input is rejected before touching the store.
func DecodeRefreshToken(token string) ([16]byte, [refreshSecretSize]byte, error) {
	var (
		accountID [16]byte
		secret    [refreshSecretSize]byte
	)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return accountID, secret, err
	}
	if len(raw) != refreshTokenRawSize {
		return accountID, secret, errors.New("invalid refresh token size")
	}

	copy(accountID[:], raw[:len(accountID)])
	copy(secret[:], raw[len(accountID):])

	return accountID, secret, nil
}

// HashCode returns the stored form of a one-time code.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// NumericCode generates a fixed-length numeric one-time code.
//
// Digits are drawn by rejection sampling: a random byte is discarded unless
// it falls below 250, so each of the ten digits is equally likely. Reducing
// raw bytes modulo 10 directly would skew the distribution toward 0-5.
func NumericCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid code length")
	}

	out := make([]byte, 0, digits)
	buf := make([]byte, 16)
	for len(out) < digits {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= 250 {
				continue
			}
			out = append(out, '0'+b%10)
			if len(out) == digits {
				break
			}
		}
	}

	return string(out), nil
}
