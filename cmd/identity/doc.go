// Package identity is the read-only directory of users, roles, and class rosters.
//
// The attendance core never writes here: it consumes rosters at finalize time,
// resolves student ids, and looks up the role behind a bearer credential.
// Implementations: InMemoryStore (dev, seeded from JSON) and PostgresStore.
package identity
