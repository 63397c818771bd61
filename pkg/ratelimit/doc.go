// Package ratelimit provides per-client token-bucket rate limiting middleware
// for the admin endpoints, keyed by basic auth user or client IP, with
// automatic stale-entry cleanup.
package ratelimit
