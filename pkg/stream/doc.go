/*
Package stream drives the byte movement of one transfer job through a
ready worker pod, in one of three mutually exclusive modes: archived
export (tar out of the worker, optionally gzip-framed), plain-directory
export (direct recursive copy), or import (local archive or on-the-fly
tarred directory piped into the worker's extraction command).

The blocking data movement runs in the background while the engine samples
progress every second (moving-average throughput over the last ten
samples) and re-queries pod phase every fifth tick — a vanished worker
never produces EOF, so the stream is killed immediately instead. Exit code
137 is reported as the memory-exhaustion branch with elevated diagnostics;
every other non-zero exit is a generic stream failure. Nothing is retried.
*/
package stream
