// Package pg opens pgx/v5 connection pools with startup retries and
// classifies common PostgreSQL errors.
//
// The subscription store is the only consumer. Schema bootstrapping lives
// with the store (PostgresStore.EnsureSchema); there is no migration runner.
//
// # Error helpers
//
// IsNotFoundError, IsDuplicateKeyError and IsSerializationError unwrap
// *pgconn.PgError so callers can map driver errors to domain errors:
//
//	if pg.IsDuplicateKeyError(err) {
//	    return subscription.ErrRequestExists
//	}
package pg
