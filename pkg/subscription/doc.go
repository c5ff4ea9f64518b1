// Package subscription owns the book-rental subscription domain: subscription
// requests created at checkout, the payment invoices behind them, the user
// accounts they activate, and the plan catalog that defines entitlements.
//
// # Lifecycle
//
// A SubscriptionRequest starts as pending and moves exactly once to one of
// the terminal states:
//
//	pending ──► completed   (payment succeeded, account activated)
//	        ──► failed      (gateway reported failure or expiry)
//	        ──► cancelled   (administrative cancellation)
//
// Terminal states have no outgoing transitions. ProcessedAt is stamped on
// the single terminal transition and never rewritten.
//
// # Store
//
// Every write to a request, invoice or user account goes through Store.
// Status transitions are compare-and-set operations: MarkCompleted,
// MarkFailed and MarkCancelled only apply while the request is pending and
// report whether they did. Repeating the transition that already happened is
// not an error; it returns false so callers can log the duplicate.
//
// WithinTx groups several operations into one atomic unit. The webhook
// pipeline runs the status transition and the account activation inside a
// single WithinTx call so a failure leaves the request pending and a lost
// race leaves no side effects behind.
//
// Two implementations are provided:
//
//   - MemoryStore: process-local, used in tests and local development.
//   - PostgresStore: pgx/v5 backed. Transitions are conditional UPDATEs
//     checked through RowsAffected; WithinTx maps onto a database transaction.
//
// # Plans
//
// Catalog serves plan definitions from a PlanSource (a YAML file or a static
// list) through a TTL cache. Reload drops the cached copy so the next lookup
// re-reads the source.
//
// # Renewal
//
// Renew computes a user's new subscription window. Renewing before expiry
// extends from the current end date so no paid time is lost; renewing after
// expiry starts a fresh window from now.
package subscription
