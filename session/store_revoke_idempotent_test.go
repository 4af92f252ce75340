package session

import (
	"context"
	"testing"
)

func TestRevokeIdempotent(t *testing.T) {
	store, _, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	sess := testSession()

	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save session: %v", err)
	}

	did, err := store.Revoke(ctx, sess.TenantID, sess.SessionID, RevokeReasonLogout)
	if err != nil {
		t.Fatalf("first revoke: %v", err)
	}
	if !did {
		t.Fatal("first revoke reported no transition")
	}

	did, err = store.Revoke(ctx, sess.TenantID, sess.SessionID, RevokeReasonLogout)
	if err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if did {
		t.Fatal("second revoke reported a transition")
	}

	head, err := store.Get(ctx, sess.TenantID, sess.SessionID)
	if err != nil {
		t.Fatalf("get after revoke: %v", err)
	}
	if head.Status != StatusRevoked || head.RevokeReason != RevokeReasonLogout {
		t.Fatalf("unexpected head after revoke: %+v", head)
	}
}

func TestRevokeUnknownSessionSucceeds(t *testing.T) {
	store, _, _, done := newSessionStoreTest(t)
	defer done()

	did, err := store.Revoke(context.Background(), "t-1", "never-existed", RevokeReasonLogout)
	if err != nil {
		t.Fatalf("revoke of unknown session errored: %v", err)
	}
	if did {
		t.Fatal("revoke of unknown session reported a transition")
	}
}

// TestRevokeDoesNotOverwriteReuseReason pins that a lineage closed by reuse
// detection keeps its reason even if a logout lands afterwards.
func TestRevokeDoesNotOverwriteReuseReason(t *testing.T) {
	store, _, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	sess := testSession()

	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save session: %v", err)
	}

	// Rotate, then replay the stale generation to trip reuse detection.
	if _, err := store.ExchangeRefresh(ctx, sess.TenantID, sess.SessionID, attemptFor(sess, [32]byte{2})); err != nil {
		t.Fatalf("exchange failed: %v", err)
	}
	if _, err := store.ExchangeRefresh(ctx, sess.TenantID, sess.SessionID, attemptFor(sess, [32]byte{3})); err == nil {
		t.Fatal("replay unexpectedly succeeded")
	}

	if _, err := store.Revoke(ctx, sess.TenantID, sess.SessionID, RevokeReasonLogout); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	head, err := store.Get(ctx, sess.TenantID, sess.SessionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if head.RevokeReason != RevokeReasonReuse {
		t.Fatalf("reuse reason overwritten: %v", head.RevokeReason)
	}
}
