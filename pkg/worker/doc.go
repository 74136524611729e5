/*
Package worker manages the lifecycle of the ephemeral pod attached to one
volume for the duration of one transfer job:

	requested → creating → awaiting-ready → ready → running →
	verifying → terminating → done | failed

The pod runs nothing but a capped sleep; it exists to expose the claim's
mount point to exec and cp. Its memory ceiling is a step function of the
claim's declared capacity, because archive compression buffers stream
backlog in worker memory. Diagnostics (status, describe, events, log tail)
are captured strictly before deletion — they are unrecoverable afterwards —
and teardown runs on a context detached from run cancellation so an
interrupted run still cleans up its worker.
*/
package worker
