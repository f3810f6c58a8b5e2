// Package testutil provides test utilities for the castwave client:
//   - Miniredis helpers for Redis-backed components (miniredis.go)
//   - A fake podcast API with per-route request counters (backend.go)
//   - A quiet logger for constructors that require one (logger.go)
package testutil
