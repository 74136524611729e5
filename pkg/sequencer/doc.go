// Package sequencer orchestrates a batch of transfers end to end: batch
// pre-check, per-job target resolution and provisioning, worker launch,
// streaming, verification, and teardown. Jobs run strictly sequentially;
// the worker of an interrupted job is still cleaned up before the run
// reports. The final report is rendered in color and persisted to the
// history store.
package sequencer
