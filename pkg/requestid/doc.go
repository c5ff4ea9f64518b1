// Package requestid assigns a correlation id to each inbound HTTP request and
// exposes it to handlers and the structured logger.
package requestid
