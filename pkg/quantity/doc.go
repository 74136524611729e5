/*
Package quantity parses and formats byte quantities with Ki/Mi/Gi/Ti (and
decimal K/M/G/T) suffixes, normalized to a single unit: bytes.

It also owns the two sizing policies of the tool: the worker pod memory
ceiling as a step function of declared volume capacity, and the suggested
PVC capacity for import sources (headroom plus rounding to readable
boundaries).
*/
package quantity
