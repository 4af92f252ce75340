//go:build integration
// +build integration

package test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tokenlife/tokenlife/session"
)

func newIntegrationStore(t *testing.T) (*session.RedisStore, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := session.NewStore(rdb, "tl", 0, time.Hour)

	return store, rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func makeSession(tenantID, userID, sessionID string, refreshHash [32]byte) *session.Session {
	now := time.Now()

	return &session.Session{
		SessionID:   sessionID,
		UserID:      userID,
		TenantID:    tenantID,
		Roles:       []string{"member"},
		Generation:  0,
		Status:      session.StatusActive,
		RefreshHash: refreshHash,
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(time.Hour).Unix(),
	}
}

func exchangeAttempt(generation uint32, provided, next [32]byte) session.RefreshAttempt {
	return session.RefreshAttempt{
		Generation:    generation,
		ProvidedHash:  provided,
		NextHash:      next,
		NextExpiresAt: time.Now().Add(time.Hour).Unix(),
	}
}

func hashByte(b byte) [32]byte {
	var out [32]byte
	for i := 0; i < len(out); i++ {
		out[i] = b
	}
	return out
}
