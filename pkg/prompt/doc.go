/*
Package prompt abstracts the yes/no, input and select questions the
pre-check scanner and the target resolution engine ask. Survey drives a
terminal; NonInteractive encodes the batch-mode policy; Fake scripts
answers in tests.
*/
package prompt
