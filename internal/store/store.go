package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vigil-sec/vigil/internal/models"
)

// Store is the common interface for mitigation state backends (Redis,
// in-memory). Absence of an entry means "no mitigation"; expiry removes
// entries automatically.
type Store interface {
	// Get returns the current action for an entity, or ok=false when no
	// mitigation is active.
	Get(ctx context.Context, et models.EntityType, entity string) (models.Action, bool, error)
	// Set writes (or overwrites) the enforcement entry and its ":details"
	// audit sibling, both with the given TTL.
	Set(ctx context.Context, et models.EntityType, entity string, action models.Action, details models.EnforcementDetails, ttl time.Duration) error
	// Details returns the audit payload for an active entry, or nil when absent.
	Details(ctx context.Context, et models.EntityType, entity string) (*models.EnforcementDetails, error)
	// Active lists all live enforcement entries keyed by "type:entity".
	Active(ctx context.Context) (map[string]models.Action, error)
	// Delete removes an enforcement entry and its details.
	Delete(ctx context.Context, et models.EntityType, entity string) error
	// Ping checks backend reachability.
	Ping(ctx context.Context) error
}

// Key builds the enforcement key for an entity: "mitigation:{ip|user}:{entity}".
func Key(et models.EntityType, entity string) string {
	return fmt.Sprintf("mitigation:%s:%s", et, entity)
}

// DetailsKey builds the audit sibling key for an entity.
func DetailsKey(et models.EntityType, entity string) string {
	return Key(et, entity) + ":details"
}

// SplitKey parses a "type:entity" pair as produced by Active.
func SplitKey(key string) (models.EntityType, string, bool) {
	i := strings.Index(key, ":")
	if i < 0 {
		return "", "", false
	}
	et := models.EntityType(key[:i])
	if et != models.EntityIP && et != models.EntityUser {
		return "", "", false
	}
	return et, key[i+1:], true
}
