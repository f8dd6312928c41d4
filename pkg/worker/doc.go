// Package worker owns the in-process dispatch queue and executor pool.
// Task rows are created by the API layer; the pool turns them into
// running engine invocations, bounded by a fixed executor count, and
// republishes their terminal outcomes on the event broker. On startup
// it runs the crash-recovery pass and re-dispatches any snatch the
// previous process left running.
package worker
