// Package billing turns gateway payments into subscription entitlements.
//
// The Orchestrator starts checkouts, activates user accounts and cancels
// pending requests. The Processor verifies and applies gateway callbacks:
// every callback for a reference either finds the request already terminal
// (a duplicate) or wins the store's pending-to-terminal compare-and-set and
// applies its side effects in the same transaction. The Reconciler polls the
// gateway for requests whose callback never arrived and feeds the answer
// through the same Processor path.
//
// Errors that retrying cannot fix (ErrAuthentication, ErrValidation) are
// separated from ErrStore, which marks transient persistence failures the
// gateway should retry.
package billing
