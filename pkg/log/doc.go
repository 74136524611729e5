/*
Package log provides structured logging for pvcship using zerolog.

It wraps zerolog with a global logger, component/volume/pod child loggers
and the per-run log-file artifact: when a file path is configured, every
log line is teed to a rotating file so diagnostic detail survives even when
the console runs at a quieter level.
*/
package log
