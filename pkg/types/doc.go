// Package types defines the shared data model: credential profiles,
// task rows and their status machine, snatch progress documents, and
// the singleton settings files.
package types
