// Package permission provides the role registry used by tokenlife to
// validate the roles attached to a principal at issuance time.
//
// # Registration model
//
// Role names are registered during initialization via [Registry.Register]
// and the registry is frozen with [Registry.Freeze] before the engine
// starts issuing credentials. After freezing the registry is read-only
// and safe for concurrent lookups.
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O. Role
// names registered here travel inside access token claims; the registry
// itself never inspects tokens.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import tokenlife, jwt, or session.
//   - Accept new registrations after the registry is frozen.
package permission
