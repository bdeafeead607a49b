// Package store is the shared relational store behind the coordination layer:
// session liveness, advisory file claims, coordination messages and findings.
//
// Every mutation is a single upsert or insert relying on the database's own
// atomicity; there are no in-memory locks and no compare-and-swap anywhere.
// Hook processes are short-lived and share nothing but this store.
package store
