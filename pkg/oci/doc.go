// Package oci constructs per-profile OCI service clients and defines
// the narrow provider interfaces the rest of the system is written
// against, together with the error classification the snatch loop
// depends on.
package oci
