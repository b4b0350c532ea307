package nickname

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/studio-arcade/internal/arcade"
	"github.com/studio-arcade/internal/storage"
)

var (
	// ErrInvalid indicates a malformed nickname or PIN
	ErrInvalid = errors.New("invalid nickname input")

	// ErrTaken indicates the nickname is already claimed
	ErrTaken = errors.New("nickname taken")

	// ErrNotFound indicates no record exists for the nickname
	ErrNotFound = errors.New("nickname not found")

	// ErrWrongPin indicates the supplied PIN does not match the record
	ErrWrongPin = errors.New("wrong pin")

	// ErrInvalidPin is the public login failure: ErrNotFound and ErrWrongPin
	// collapsed so callers cannot probe which nicknames exist.
	ErrInvalidPin = errors.New("invalid pin")

	// ErrRateLimited indicates too many attempts in the current window
	ErrRateLimited = errors.New("rate limited")

	// ErrUnavailable indicates no storage backend could serve the request
	ErrUnavailable = errors.New("registry unavailable")
)

// Resolver yields the storage backend for registry operations
type Resolver interface {
	ResolveDurable(ctx context.Context) (storage.Store, error)
}

// Registry manages nickname ownership records and PIN authentication
type Registry struct {
	resolver Resolver
	limiter  *RateLimiter
	now      func() time.Time

	// detach runs a fire-and-forget side effect; failures are logged by the
	// task itself and never propagated to the caller
	detach func(fn func())
}

// NewRegistry creates a registry on top of a backend resolver
func NewRegistry(resolver Resolver, limiter *RateLimiter) *Registry {
	return &Registry{
		resolver: resolver,
		limiter:  limiter,
		now:      time.Now,
		detach:   func(fn func()) { go fn() },
	}
}

func key(canonical string) string {
	return "nick:" + strings.ToLower(canonical)
}

// Claim atomically reserves a nickname with a PIN. The record's existence is
// the ownership claim: the first successful set-if-absent wins, every later
// attempt gets ErrTaken.
func (r *Registry) Claim(ctx context.Context, nickname, pin string) (string, error) {
	canonical := arcade.CanonicalizeNickname(nickname)
	if !arcade.IsValidCanonicalNickname(canonical) || !arcade.IsValidPIN(pin) {
		return "", ErrInvalid
	}

	store, err := r.resolver.ResolveDurable(ctx)
	if err != nil {
		return "", ErrUnavailable
	}

	salt, err := arcade.NewSalt()
	if err != nil {
		return "", err
	}

	record := arcade.NicknameRecord{
		Nickname:  canonical,
		Salt:      salt,
		PinHash:   arcade.HashPIN(salt, pin),
		CreatedAt: r.now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("error marshaling nickname record: %w", err)
	}

	ok, err := store.SetNX(ctx, key(canonical), data)
	if err != nil {
		log.Printf("Warning: nickname claim failed for %s: %v", canonical, err)
		return "", ErrUnavailable
	}
	if !ok {
		return "", ErrTaken
	}

	return canonical, nil
}

// Verify checks a nickname's PIN, distinguishing ErrNotFound from
// ErrWrongPin for internal flows. A record without PIN auth is upgraded on
// first successful login: the supplied PIN becomes its permanent PIN.
func (r *Registry) Verify(ctx context.Context, nickname, pin, ip string) (string, error) {
	canonical := arcade.CanonicalizeNickname(nickname)
	if !arcade.IsValidCanonicalNickname(canonical) || !arcade.IsValidPIN(pin) {
		return "", ErrInvalid
	}

	// Rate limit before touching storage
	if !r.limiter.Allow(canonical, ip) {
		return "", ErrRateLimited
	}

	store, err := r.resolver.ResolveDurable(ctx)
	if err != nil {
		return "", ErrUnavailable
	}

	raw, found, err := store.Get(ctx, key(canonical))
	if err != nil {
		log.Printf("Warning: nickname read failed for %s: %v", canonical, err)
		return "", ErrUnavailable
	}
	if !found {
		return "", ErrNotFound
	}

	var record arcade.NicknameRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return "", fmt.Errorf("error parsing nickname record for %s: %w", canonical, err)
	}

	if !record.HasPinAuth() {
		return r.upgradeLegacy(ctx, store, canonical, pin, ip, record)
	}

	if !arcade.VerifyPIN(record.PinHash, record.Salt, pin) {
		return "", ErrWrongPin
	}

	r.touchLastLogin(store, canonical, record)
	r.limiter.Clear(canonical, ip)
	return canonical, nil
}

// Login is the public verification: not-found and wrong-PIN both surface as
// ErrInvalidPin so the endpoint is not a nickname enumeration oracle.
func (r *Registry) Login(ctx context.Context, nickname, pin, ip string) (string, error) {
	canonical, err := r.Verify(ctx, nickname, pin, ip)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrWrongPin) {
		return "", ErrInvalidPin
	}
	return canonical, err
}

// upgradeLegacy installs PIN auth on a record created before PINs existed.
// Whoever logs in first claims the PIN permanently; that is a documented
// migration trade-off.
func (r *Registry) upgradeLegacy(ctx context.Context, store storage.Store, canonical, pin, ip string, record arcade.NicknameRecord) (string, error) {
	salt, err := arcade.NewSalt()
	if err != nil {
		return "", err
	}

	record.Nickname = canonical
	record.Salt = salt
	record.PinHash = arcade.HashPIN(salt, pin)
	record.LastLoginAt = r.now().UTC().Format(time.RFC3339)
	if record.CreatedAt == "" {
		record.CreatedAt = record.LastLoginAt
	}

	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("error marshaling nickname record: %w", err)
	}

	ok, err := store.SetXX(ctx, key(canonical), data)
	if err != nil {
		log.Printf("Warning: legacy upgrade failed for %s: %v", canonical, err)
		return "", ErrUnavailable
	}
	if !ok {
		return "", ErrNotFound
	}

	log.Printf("Upgraded legacy nickname %s to PIN auth", canonical)
	r.limiter.Clear(canonical, ip)
	return canonical, nil
}

// touchLastLogin refreshes lastLoginAt without making the login wait on the
// write
func (r *Registry) touchLastLogin(store storage.Store, canonical string, record arcade.NicknameRecord) {
	record.LastLoginAt = r.now().UTC().Format(time.RFC3339)
	r.detach(func() {
		data, err := json.Marshal(record)
		if err != nil {
			log.Printf("Error marshaling nickname record for %s: %v", canonical, err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := store.SetXX(ctx, key(canonical), data); err != nil {
			log.Printf("Error refreshing lastLoginAt for %s: %v", canonical, err)
		}
	})
}
