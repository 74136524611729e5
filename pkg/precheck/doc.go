// Package precheck validates a whole batch of transfer jobs before any
// worker pod is created. It detects missing volumes, exclusive-attach
// conflicts with running consumers, and local destinations that would be
// overwritten, and resolves each conflict category with one batched
// decision instead of a prompt per job.
package precheck
