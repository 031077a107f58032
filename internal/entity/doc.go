// Package entity defines the identifiable entities replicated by replica.
//
// Every replicated record has a stable remote-assigned id and a
// remote-assigned lastUpdated timestamp. Those two fields are all the
// reconciliation engine looks at; the remaining payload is opaque and
// only travels through a Codec into the local store.
//
// This package imports nothing internal. All other internal packages
// build on it.
package entity
