/*
Package types defines the core value types shared across pvcship: volume
references, transfer jobs, resolved import targets, conflict records and the
per-run report.

Types here carry no behavior beyond parsing, formatting and report
aggregation. The "volume@namespace" convention is parsed exactly once, at
the CLI boundary, into a VolumeRef; no downstream component re-parses
composite strings.
*/
package types
