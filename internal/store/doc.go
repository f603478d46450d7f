// Package store provides SQLite-backed history of compliance runs.
//
// Each run is stored with its summary, digest and attestation token, and
// one row per report line. A stored run can be read back as a report and
// re-verified: the digest is recomputed from the stored lines.
//
// # Ordering
//
// Runs are ordered by seq, a counter assigned at insert, never by wall time.
// Results are ordered by their position in the run.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
