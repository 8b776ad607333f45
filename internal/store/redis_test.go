package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigil-sec/vigil/internal/models"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewRedisStore(mr.Addr(), "", 0), mr
}

func TestRedisStore_SetGetRoundTrip(t *testing.T) {
	s, mr := setupRedisStore(t)
	ctx := context.Background()

	details := models.EnforcementDetails{
		Mitigation:  models.ActionTempBlock,
		Severity:    models.SeverityHigh,
		Reason:      "100 failed logins in 2 minutes",
		Timestamp:   time.Now().UTC(),
		SourceAgent: "auth",
	}
	require.NoError(t, s.Set(ctx, models.EntityIP, "10.0.0.5", models.ActionTempBlock, details, time.Hour))

	// Raw key holds the action name with a live TTL.
	raw, err := mr.Get("mitigation:ip:10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, "temp_block", raw)
	assert.Greater(t, mr.TTL("mitigation:ip:10.0.0.5"), time.Duration(0))

	action, ok, err := s.Get(ctx, models.EntityIP, "10.0.0.5")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.ActionTempBlock, action)

	got, err := s.Details(ctx, models.EntityIP, "10.0.0.5")
	assert.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "100 failed logins in 2 minutes", got.Reason)
	assert.Equal(t, "auth", got.SourceAgent)
}

func TestRedisStore_MissingKey(t *testing.T) {
	s, _ := setupRedisStore(t)

	action, ok, err := s.Get(context.Background(), models.EntityUser, "nobody")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, action)

	details, err := s.Details(context.Background(), models.EntityUser, "nobody")
	assert.NoError(t, err)
	assert.Nil(t, details)
}

func TestRedisStore_LegacyNumeralValues(t *testing.T) {
	s, mr := setupRedisStore(t)

	// Older deployments wrote severity numerals instead of action names.
	require.NoError(t, mr.Set("mitigation:user:mallory", "3"))

	action, ok, err := s.Get(context.Background(), models.EntityUser, "mallory")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.ActionTempBlock, action)
}

func TestRedisStore_GarbageValueFailsOpen(t *testing.T) {
	s, mr := setupRedisStore(t)

	require.NoError(t, mr.Set("mitigation:ip:2.2.2.2", "not-a-mitigation"))

	_, ok, err := s.Get(context.Background(), models.EntityIP, "2.2.2.2")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_Expiry(t *testing.T) {
	s, mr := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, models.EntityIP, "9.9.9.9", models.ActionBan, models.EnforcementDetails{}, time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok, err := s.Get(ctx, models.EntityIP, "9.9.9.9")
	assert.NoError(t, err)
	assert.False(t, ok, "entry should have expired")
}

func TestRedisStore_Active(t *testing.T) {
	s, _ := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, models.EntityIP, "1.1.1.1", models.ActionDelay, models.EnforcementDetails{}, time.Hour))
	require.NoError(t, s.Set(ctx, models.EntityUser, "eve", models.ActionBan, models.EnforcementDetails{}, time.Hour))

	active, err := s.Active(ctx)
	assert.NoError(t, err)
	assert.Len(t, active, 2)
	assert.Equal(t, models.ActionDelay, active["ip:1.1.1.1"])
	assert.Equal(t, models.ActionBan, active["user:eve"])
}

func TestRedisStore_UnreachableFailsWithError(t *testing.T) {
	s, mr := setupRedisStore(t)
	mr.Close()

	_, _, err := s.Get(context.Background(), models.EntityIP, "1.1.1.1")
	assert.Error(t, err, "read errors must surface so callers can fail open")
}
