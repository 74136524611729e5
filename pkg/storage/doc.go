// Package storage persists run history in an embedded BoltDB file. Each
// batch run is one JSON-encoded RunRecord in the runs bucket, keyed by run
// ID; writes are upserts and reads use consistent snapshots, so the history
// command can run while a transfer is still recording.
package storage
