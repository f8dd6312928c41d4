// Package network provides the idempotent network bootstrap: it
// guarantees a profile has a usable VCN, internet gateway, default
// route and subnet before a launch, and enables IPv6 across a VNIC's
// network path on demand.
package network
