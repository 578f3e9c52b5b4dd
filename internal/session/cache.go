// cache.go -- Cookie-backed identity cache, namespaced per application.
//
// An identity is three physically independent entries written together:
//
//	wx_oauth_{appID}_openId    primary id
//	wx_oauth_{appID}_unionId   secondary id
//	wx_oauth_{appID}_userInfo  profile, JSON encoded
//
// Readers tolerate any subset being present; deciding whether a partial
// identity is good enough is the caller's job.
//
// A fourth, short-lived entry (wx_oauth_{appID}_flow) marks the browser that
// started the current provider redirect. It is not part of the identity.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrSerialization is returned by Set when the profile cannot be encoded.
// Nothing is written when it occurs.
var ErrSerialization = errors.New("profile serialization failed")

const keyPrefix = "wx_oauth_"

// Field names of the three cookie entries.
const (
	FieldOpenID   = "openId"
	FieldUnionID  = "unionId"
	FieldUserInfo = "userInfo"
	FieldFlow     = "flow"
)

// Key returns the namespaced storage key for field under appID.
func Key(appID, field string) string {
	return keyPrefix + appID + "_" + field
}

// Identity is the cached result of a successful code exchange.
type Identity struct {
	PrimaryID   string         // openId
	SecondaryID string         // unionId, may be empty under snsapi_base
	Profile     map[string]any // opaque to this package
}

// Cache reads and writes identities through a Storage.
type Cache struct {
	storage Storage
}

// NewCache wraps s.
func NewCache(s Storage) *Cache {
	return &Cache{storage: s}
}

// Get reads whatever identity entries are present for appID.
// ok is false only when none of the three entries exist.
// An unparseable profile entry yields a nil Profile, not an error.
func (c *Cache) Get(appID string) (Identity, bool, error) {
	var id Identity

	openID, hasOpen, err := c.storage.Get(Key(appID, FieldOpenID))
	if err != nil {
		return Identity{}, false, fmt.Errorf("reading %s: %w", FieldOpenID, err)
	}
	unionID, hasUnion, err := c.storage.Get(Key(appID, FieldUnionID))
	if err != nil {
		return Identity{}, false, fmt.Errorf("reading %s: %w", FieldUnionID, err)
	}
	rawProfile, hasProfile, err := c.storage.Get(Key(appID, FieldUserInfo))
	if err != nil {
		return Identity{}, false, fmt.Errorf("reading %s: %w", FieldUserInfo, err)
	}

	id.PrimaryID = openID
	id.SecondaryID = unionID
	if hasProfile {
		id.Profile = parseProfile(rawProfile)
	}
	return id, hasOpen || hasUnion || hasProfile, nil
}

// Set writes all three entries for appID with the same expiry.
// The profile is encoded before anything is written, so ErrSerialization
// leaves storage untouched.
func (c *Cache) Set(appID string, id Identity, ttlDays int) error {
	profile := id.Profile
	if profile == nil {
		profile = map[string]any{}
	}
	encoded, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSerialization, err)
	}

	ttl := time.Duration(ttlDays) * 24 * time.Hour
	if err := c.storage.Set(Key(appID, FieldUnionID), id.SecondaryID, ttl); err != nil {
		return fmt.Errorf("writing %s: %w", FieldUnionID, err)
	}
	if err := c.storage.Set(Key(appID, FieldOpenID), id.PrimaryID, ttl); err != nil {
		return fmt.Errorf("writing %s: %w", FieldOpenID, err)
	}
	if err := c.storage.Set(Key(appID, FieldUserInfo), string(encoded), ttl); err != nil {
		return fmt.Errorf("writing %s: %w", FieldUserInfo, err)
	}
	return nil
}

// Clear removes all three entries for appID. Absent entries are fine.
func (c *Cache) Clear(appID string) error {
	for _, field := range []string{FieldUnionID, FieldOpenID, FieldUserInfo} {
		if err := c.storage.Remove(Key(appID, field)); err != nil {
			return fmt.Errorf("removing %s: %w", field, err)
		}
	}
	return nil
}

// Profile returns the cached profile for appID, or an empty map when it is
// absent or unparseable. Only storage failures are returned as errors.
func (c *Cache) Profile(appID string) (map[string]any, error) {
	raw, ok, err := c.storage.Get(Key(appID, FieldUserInfo))
	if err != nil {
		return map[string]any{}, fmt.Errorf("reading %s: %w", FieldUserInfo, err)
	}
	if !ok {
		return map[string]any{}, nil
	}
	if p := parseProfile(raw); p != nil {
		return p, nil
	}
	return map[string]any{}, nil
}

// parseProfile decodes a stored profile; nil means "no profile".
func parseProfile(raw string) map[string]any {
	var p map[string]any
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil
	}
	return p
}

// SetFlow records the login flow nonce for appID.
func (c *Cache) SetFlow(appID, nonce string, ttl time.Duration) error {
	if err := c.storage.Set(Key(appID, FieldFlow), nonce, ttl); err != nil {
		return fmt.Errorf("writing %s: %w", FieldFlow, err)
	}
	return nil
}

// Flow returns the login flow nonce for appID, or "" when none is present.
func (c *Cache) Flow(appID string) (string, error) {
	v, _, err := c.storage.Get(Key(appID, FieldFlow))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", FieldFlow, err)
	}
	return v, nil
}

// ClearFlow removes the login flow nonce for appID.
func (c *Cache) ClearFlow(appID string) error {
	if err := c.storage.Remove(Key(appID, FieldFlow)); err != nil {
		return fmt.Errorf("removing %s: %w", FieldFlow, err)
	}
	return nil
}
