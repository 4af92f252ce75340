package sessionpg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/tokenlife/tokenlife/session"
)

const testNow int64 = 1700000000

func newStoreWithMock(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	store := New(db, 0, 24*time.Hour)
	store.now = func() time.Time { return time.Unix(testNow, 0) }
	return store, mock, db
}

func testSession() *session.Session {
	return &session.Session{
		SessionID:   "sid-1",
		UserID:      "u-1",
		TenantID:    "t-1",
		Roles:       []string{"member"},
		Generation:  3,
		Status:      session.StatusActive,
		RefreshHash: [32]byte{3},
		CreatedAt:   testNow - 60,
		ExpiresAt:   testNow + 3600,
	}
}

func sessionRows(sess *session.Session) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"user_id", "roles", "generation", "status", "revoke_reason", "refresh_hash", "created_at", "expires_at"}).
		AddRow(sess.UserID, strings.Join(sess.Roles, ","), int64(sess.Generation), int16(sess.Status), int16(sess.RevokeReason), sess.RefreshHash[:], sess.CreatedAt, sess.ExpiresAt)
}

func TestSave_Success(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	sess := testSession()
	q := `(?s)^INSERT\s+INTO\s+sessions\b.*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6,\s*\$7,\s*\$8,\s*\$9,\s*\$10,\s*\$11\)\s*$`

	mock.ExpectExec(q).
		WithArgs("t-1", "sid-1", "u-1", "member", int64(3), int16(0), int16(0),
			sess.RefreshHash[:], sess.CreatedAt, sess.ExpiresAt, sess.ExpiresAt+86400). // delete_after = expires_at + retention
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Save(context.Background(), sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSave_RejectsCommaInRole(t *testing.T) {
	store, _, db := newStoreWithMock(t)
	defer db.Close()

	sess := testSession()
	sess.Roles = []string{"member,admin"}

	if err := store.Save(context.Background(), sess); err == nil {
		t.Fatal("want error for role containing a comma, got nil")
	}
}

func TestSave_DBError(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+sessions\b`

	mock.ExpectExec(q).
		WillReturnError(errors.New("db down"))

	err := store.Save(context.Background(), testSession())
	if !errors.Is(err, session.ErrStoreUnavailable) {
		t.Fatalf("want ErrStoreUnavailable, got %v", err)
	}
}

func TestGet_Found(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	want := testSession()
	q := `(?s)^SELECT\s+user_id,.*FROM\s+sessions\s+WHERE\s+tenant_id\s*=\s*\$1\s+AND\s+session_id\s*=\s*\$2\s+AND\s+delete_after\s*>\s*\$3\s*$`

	mock.ExpectQuery(q).
		WithArgs("t-1", "sid-1", testNow).
		WillReturnRows(sessionRows(want))

	got, err := store.Get(context.Background(), "t-1", "sid-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UserID != want.UserID || got.Generation != want.Generation || got.RefreshHash != want.RefreshHash {
		t.Fatalf("unexpected session: %+v", got)
	}
	if len(got.Roles) != 1 || got.Roles[0] != "member" {
		t.Fatalf("unexpected roles: %v", got.Roles)
	}
}

func TestGet_NotFound(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+user_id,`).
		WithArgs("t-1", "missing", testNow).
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "t-1", "missing")
	if !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
}

func TestGet_CorruptHash(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"user_id", "roles", "generation", "status", "revoke_reason", "refresh_hash", "created_at", "expires_at"}).
		AddRow("u-1", "", int64(0), int16(0), int16(0), []byte{1, 2, 3}, testNow-60, testNow+3600)

	mock.ExpectQuery(`(?s)^SELECT\s+user_id,`).
		WithArgs("t-1", "sid-1", testNow).
		WillReturnRows(rows)

	_, err := store.Get(context.Background(), "t-1", "sid-1")
	if !errors.Is(err, session.ErrSessionCorrupt) {
		t.Fatalf("want ErrSessionCorrupt, got %v", err)
	}
}

func TestGet_NormalizesEmptyTenant(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+user_id,`).
		WithArgs("0", "sid-1", testNow).
		WillReturnRows(sessionRows(testSession()))

	if _, err := store.Get(context.Background(), "", "sid-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestExchangeRefresh_Advances(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	head := testSession()
	attempt := session.RefreshAttempt{
		Generation:    head.Generation,
		ProvidedHash:  head.RefreshHash,
		NextHash:      [32]byte{4},
		NextExpiresAt: testNow + 7*24*3600,
	}

	selectQ := `(?s)^SELECT\s+user_id,.*FROM\s+sessions\b.*FOR\s+UPDATE\s*$`
	updateQ := `(?s)^UPDATE\s+sessions\s+SET\s+generation\s*=\s*\$3,\s*refresh_hash\s*=\s*\$4,\s*expires_at\s*=\s*\$5,\s*delete_after\s*=\s*\$6\s+WHERE\s+tenant_id\s*=\s*\$1\s+AND\s+session_id\s*=\s*\$2\s*$`

	mock.ExpectBegin()
	mock.ExpectQuery(selectQ).
		WithArgs("t-1", "sid-1", testNow).
		WillReturnRows(sessionRows(head))
	mock.ExpectExec(updateQ).
		WithArgs("t-1", "sid-1", int64(4), attempt.NextHash[:], attempt.NextExpiresAt, attempt.NextExpiresAt+86400).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := store.ExchangeRefresh(context.Background(), "t-1", "sid-1", attempt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Generation != 4 {
		t.Fatalf("generation = %d, want 4", got.Generation)
	}
	if got.RefreshHash != attempt.NextHash {
		t.Fatal("refresh hash was not replaced")
	}
	if got.ExpiresAt != attempt.NextExpiresAt {
		t.Fatalf("expires_at = %d, want %d", got.ExpiresAt, attempt.NextExpiresAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestExchangeRefresh_StaleGeneration(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	head := testSession()
	attempt := session.RefreshAttempt{
		Generation:    head.Generation - 1,
		ProvidedHash:  head.RefreshHash,
		NextHash:      [32]byte{4},
		NextExpiresAt: testNow + 7*24*3600,
	}

	revokeQ := `(?s)^UPDATE\s+sessions\s+SET\s+status\s*=\s*\$3,\s*revoke_reason\s*=\s*\$4\s+WHERE\s+tenant_id\s*=\s*\$1\s+AND\s+session_id\s*=\s*\$2\s*$`

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)^SELECT\s+user_id,.*FOR\s+UPDATE\s*$`).
		WithArgs("t-1", "sid-1", testNow).
		WillReturnRows(sessionRows(head))
	mock.ExpectExec(revokeQ).
		WithArgs("t-1", "sid-1", int16(session.StatusRevoked), int16(session.RevokeReasonReuse)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := store.ExchangeRefresh(context.Background(), "t-1", "sid-1", attempt)
	if !errors.Is(err, session.ErrRefreshSuperseded) {
		t.Fatalf("want ErrRefreshSuperseded, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestExchangeRefresh_WrongHash(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	head := testSession()
	attempt := session.RefreshAttempt{
		Generation:    head.Generation,
		ProvidedHash:  [32]byte{99},
		NextHash:      [32]byte{4},
		NextExpiresAt: testNow + 7*24*3600,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)^SELECT\s+user_id,.*FOR\s+UPDATE\s*$`).
		WithArgs("t-1", "sid-1", testNow).
		WillReturnRows(sessionRows(head))
	mock.ExpectExec(`(?s)^UPDATE\s+sessions\s+SET\s+status\s*=\s*\$3,`).
		WithArgs("t-1", "sid-1", int16(session.StatusRevoked), int16(session.RevokeReasonReuse)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := store.ExchangeRefresh(context.Background(), "t-1", "sid-1", attempt)
	if !errors.Is(err, session.ErrRefreshSuperseded) {
		t.Fatalf("want ErrRefreshSuperseded, got %v", err)
	}
}

func TestExchangeRefresh_ExpiredAtBoundary(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	head := testSession()
	head.ExpiresAt = testNow // expiry instant itself is already expired

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)^SELECT\s+user_id,.*FOR\s+UPDATE\s*$`).
		WithArgs("t-1", "sid-1", testNow).
		WillReturnRows(sessionRows(head))
	mock.ExpectRollback()

	_, err := store.ExchangeRefresh(context.Background(), "t-1", "sid-1", session.RefreshAttempt{
		Generation:    head.Generation,
		ProvidedHash:  head.RefreshHash,
		NextHash:      [32]byte{4},
		NextExpiresAt: testNow + 7*24*3600,
	})
	if !errors.Is(err, session.ErrSessionExpired) {
		t.Fatalf("want ErrSessionExpired, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestExchangeRefresh_Revoked(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	head := testSession()
	head.Status = session.StatusRevoked
	head.RevokeReason = session.RevokeReasonLogout

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)^SELECT\s+user_id,.*FOR\s+UPDATE\s*$`).
		WithArgs("t-1", "sid-1", testNow).
		WillReturnRows(sessionRows(head))
	mock.ExpectRollback()

	_, err := store.ExchangeRefresh(context.Background(), "t-1", "sid-1", session.RefreshAttempt{
		Generation:   head.Generation,
		ProvidedHash: head.RefreshHash,
	})
	if !errors.Is(err, session.ErrSessionRevoked) {
		t.Fatalf("want ErrSessionRevoked, got %v", err)
	}
}

func TestExchangeRefresh_NotFound(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)^SELECT\s+user_id,.*FOR\s+UPDATE\s*$`).
		WithArgs("t-1", "missing", testNow).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.ExchangeRefresh(context.Background(), "t-1", "missing", session.RefreshAttempt{})
	if !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
}

func TestExchangeRefresh_DBError(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)^SELECT\s+user_id,.*FOR\s+UPDATE\s*$`).
		WithArgs("t-1", "sid-1", testNow).
		WillReturnError(errors.New("db down"))
	mock.ExpectRollback()

	_, err := store.ExchangeRefresh(context.Background(), "t-1", "sid-1", session.RefreshAttempt{})
	if !errors.Is(err, session.ErrStoreUnavailable) {
		t.Fatalf("want ErrStoreUnavailable, got %v", err)
	}
}

func TestExchangeRefresh_CapsAtMaxLifetime(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()
	store.maxLifetime = time.Hour

	head := testSession()
	head.CreatedAt = testNow - 1800
	limit := head.CreatedAt + 3600

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)^SELECT\s+user_id,.*FOR\s+UPDATE\s*$`).
		WithArgs("t-1", "sid-1", testNow).
		WillReturnRows(sessionRows(head))
	mock.ExpectExec(`(?s)^UPDATE\s+sessions\s+SET\s+generation\s*=\s*\$3,`).
		WithArgs("t-1", "sid-1", int64(head.Generation)+1, sqlmock.AnyArg(), limit, limit+86400).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := store.ExchangeRefresh(context.Background(), "t-1", "sid-1", session.RefreshAttempt{
		Generation:    head.Generation,
		ProvidedHash:  head.RefreshHash,
		NextHash:      [32]byte{4},
		NextExpiresAt: testNow + 7*24*3600,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ExpiresAt != limit {
		t.Fatalf("expires_at = %d, want lifetime limit %d", got.ExpiresAt, limit)
	}
}

func TestExchangeRefresh_CappedExpiryInPast(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()
	store.maxLifetime = time.Hour

	head := testSession()
	head.CreatedAt = testNow - 7200 // lifetime limit already behind now

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)^SELECT\s+user_id,.*FOR\s+UPDATE\s*$`).
		WithArgs("t-1", "sid-1", testNow).
		WillReturnRows(sessionRows(head))
	mock.ExpectRollback()

	_, err := store.ExchangeRefresh(context.Background(), "t-1", "sid-1", session.RefreshAttempt{
		Generation:    head.Generation,
		ProvidedHash:  head.RefreshHash,
		NextHash:      [32]byte{4},
		NextExpiresAt: testNow + 7*24*3600,
	})
	if !errors.Is(err, session.ErrSessionExpired) {
		t.Fatalf("want ErrSessionExpired, got %v", err)
	}
}

func TestRevoke_Success(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+sessions\s+SET\s+status\s*=\s*\$4,\s*revoke_reason\s*=\s*\$5\s+WHERE\s+tenant_id\s*=\s*\$1\s+AND\s+session_id\s*=\s*\$2\s+AND\s+status\s*=\s*\$6\s+AND\s+delete_after\s*>\s*\$3\s*$`

	mock.ExpectExec(q).
		WithArgs("t-1", "sid-1", testNow, int16(session.StatusRevoked), int16(session.RevokeReasonLogout), int16(session.StatusActive)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	revoked, err := store.Revoke(context.Background(), "t-1", "sid-1", session.RevokeReasonLogout)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !revoked {
		t.Fatal("want revoked=true")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRevoke_AlreadyRevoked(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^UPDATE\s+sessions\s+SET\s+status\s*=\s*\$4,`).
		WithArgs("t-1", "sid-1", testNow, int16(session.StatusRevoked), int16(session.RevokeReasonLogout), int16(session.StatusActive)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	revoked, err := store.Revoke(context.Background(), "t-1", "sid-1", session.RevokeReasonLogout)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if revoked {
		t.Fatal("want revoked=false for already-closed lineage")
	}
}

func TestRevokeAllForUser(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+sessions\s+SET\s+status\s*=\s*\$4,\s*revoke_reason\s*=\s*\$5\s+WHERE\s+tenant_id\s*=\s*\$1\s+AND\s+user_id\s*=\s*\$2\s+AND\s+status\s*=\s*\$6\s+AND\s+delete_after\s*>\s*\$3\s*$`

	mock.ExpectExec(q).
		WithArgs("t-1", "u-1", testNow, int16(session.StatusRevoked), int16(session.RevokeReasonLogout), int16(session.StatusActive)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.RevokeAllForUser(context.Background(), "t-1", "u-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Fatalf("revoked %d sessions, want 3", n)
	}
}

func TestTrackReplayAnomaly(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+replay_anomalies\b.*ON\s+CONFLICT\s*\(session_id\)\s+DO\s+UPDATE\b.*RETURNING\s+count\s*$`

	mock.ExpectQuery(q).
		WithArgs("sid-1", testNow+3600, testNow).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))

	count, err := store.TrackReplayAnomaly(context.Background(), "sid-1", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteAged(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+sessions\s+WHERE\s+delete_after\s*<=\s*\$1\s*$`).
		WithArgs(testNow).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+replay_anomalies\s+WHERE\s+expires_at\s*<=\s*\$1\s*$`).
		WithArgs(testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := store.DeleteAged(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 4 {
		t.Fatalf("deleted %d sessions, want 4", deleted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
