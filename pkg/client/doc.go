// Package client is the typed HTTP client behind the snatchd CLI
// subcommands. It mirrors the REST surface one method per endpoint and
// unwraps the server's error envelope into plain Go errors.
package client
