/*
Package metrics defines the Prometheus collectors for worker lifecycle,
bytes streamed and job outcomes, plus an optional /metrics endpoint served
during long batch runs.
*/
package metrics
