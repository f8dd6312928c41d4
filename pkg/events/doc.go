// Package events provides the in-memory pub/sub broker used to fan
// task lifecycle events out to interested components, the metrics
// collector first. Publishing delivers inline and never blocks: each
// subscriber buffers 50 events; a subscriber that falls behind misses
// events instead of stalling the publisher.
package events
