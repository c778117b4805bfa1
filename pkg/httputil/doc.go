// Package httputil provides small, dependency-free HTTP helpers shared
// across the pull engine: currently just retry-with-backoff, used by
// pkg/fetcher to recover from transient object-download failures.
package httputil
