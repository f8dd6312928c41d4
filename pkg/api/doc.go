// Package api exposes the REST surface: profile CRUD and ordering,
// provider sessions, instance listing and actions, launch and snatch
// task management, and the singleton notification configs. Handlers
// are thin: they validate, create task rows, and enqueue; all provider
// work beyond listing happens in the worker pool. Authentication is a
// Bearer API key or a cookie session; every request is bounded by a
// timeout that surfaces as 504.
package api
