/*
Package registry persists the task table: one row per asynchronous
unit of work (snatch, action, create), stored as JSON in a single
BoltDB bucket.

The registry owns every status transition and enforces the permitted
lifecycle:

	pending -> running -> success | failure
	pending -> running -> paused -> running -> ...

Terminal rows are sticky; only paused rows may return to running, via
an explicit Resume that mints a fresh run id. Engines never hold the
registry directly; they receive a Row handle scoped to their own task,
which keeps the module dependency pointing one way.

Crash recovery runs once at worker startup: snatch rows left in
running by a dead worker are either failed (unparseable progress,
missing profile) or re-dispatched under a new run id.
*/
package registry
