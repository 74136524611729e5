/*
Package archive is the codec for directory trees: tar stream creation and
extraction with optional gzip framing, archive integrity checks without
extraction, and source size estimation (disk usage for directories, file
size for plain archives, the gzip ISIZE trailer for compressed ones).

The remote side of a transfer runs tar inside the worker pod; this package
handles the local side — directory import sources, round-trip verification
and capacity estimation.
*/
package archive
