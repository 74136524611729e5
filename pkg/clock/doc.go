/*
Package clock provides a small Clock/Ticker abstraction over the time
package. Readiness polling, health checks and progress sampling all tick
through it, so tests drive the loops with the Fake implementation instead
of sleeping.
*/
package clock
