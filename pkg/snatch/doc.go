// Package snatch implements the capacity-snatching engine.
//
// A snatch is a persistent retry loop against a shape that is usually
// out of capacity. The engine prepares once (clients, availability
// domains, network, image, password, launch template), then loops:
//
//	attempt N targets ads[(N-1) mod len(ads)]
//	launch -> success: wait RUNNING, fetch IP, notify, terminal success
//	       -> capacity/rate: back off and rotate
//	       -> anything else: record and keep trying
//
// The loop holds no authority of its own. Before every attempt and
// after every failure it re-reads its task row; if the row is gone, no
// longer running, or carries a different run id, the loop exits without
// writing anything. Pause, delete and takeover are all expressed by
// mutating the row, never by signalling the goroutine.
package snatch
