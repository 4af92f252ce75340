// Package sessionpg provides a PostgreSQL-backed session store for deployments
// that keep authentication state in their relational database instead of Redis.
//
// # Concurrency
//
// The refresh exchange runs inside a transaction that locks the lineage row
// with SELECT ... FOR UPDATE, so exactly one concurrent exchange per session
// can win; the rest observe the advanced generation and fail the ladder.
//
// # Architecture boundaries
//
// This package implements the session.Store contract over database/sql using
// the pgx stdlib driver. Schema management ships as embedded goose migrations;
// call [Store.Migrate] once at startup.
//
// # What this package must NOT do
//
//   - Import tokenlife, jwt, or refresh (no upward imports).
//   - Interpret tokens or decide authentication outcomes.
package sessionpg
