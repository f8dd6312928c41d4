// Package action executes one-shot instance operations: power state,
// terminate, public IP rotation, IPv6 assignment, rename, reshape and
// boot volume resize. Unlike a snatch, an action never retries; it
// always ends its task row in success or failure.
package action
