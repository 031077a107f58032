// Package testutil provides deterministic fakes shared by package tests:
// a settable clock, sequential cycle ids, an in-memory remote source, a
// fault-injecting entity store and a conformance suite for tracker
// implementations.
package testutil
