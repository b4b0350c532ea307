package arcade

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"regexp"
)

var (
	hexSaltRe    = regexp.MustCompile(`^[0-9a-fA-F]{16,128}$`)
	base64SaltRe = regexp.MustCompile(`^[A-Za-z0-9+/=_-]{22,24}$`)
	pinHashRe    = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// NicknameRecord is the ownership record for one canonical nickname
type NicknameRecord struct {
	Nickname    string `json:"nickname"`
	Salt        string `json:"salt,omitempty"`
	PinHash     string `json:"pinHash,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
	LastLoginAt string `json:"lastLoginAt,omitempty"`
}

// HasPinAuth reports whether the record carries a usable salt and PIN hash.
// Records created before PIN auth existed have neither.
func (r *NicknameRecord) HasPinAuth() bool {
	if !pinHashRe.MatchString(r.PinHash) {
		return false
	}
	return hexSaltRe.MatchString(r.Salt) || base64SaltRe.MatchString(r.Salt)
}

// NewSalt returns a random 32-char hex salt
func NewSalt() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashPIN computes the salted one-way hash of a PIN as lowercase hex
func HashPIN(salt, pin string) string {
	sum := sha256.Sum256([]byte(salt + pin))
	return hex.EncodeToString(sum[:])
}

// VerifyPIN compares a stored PIN hash against the hash of the supplied PIN
// in constant time. Malformed hex or mismatched lengths compare unequal.
func VerifyPIN(storedHash, salt, pin string) bool {
	stored, err := hex.DecodeString(storedHash)
	if err != nil {
		return false
	}
	computed, err := hex.DecodeString(HashPIN(salt, pin))
	if err != nil {
		return false
	}
	if len(stored) != len(computed) {
		return false
	}
	return subtle.ConstantTimeCompare(stored, computed) == 1
}
