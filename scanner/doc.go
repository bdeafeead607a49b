// Package scanner is the background staleness scanner: a long-lived machine
// singleton that polls the session store for sessions whose heartbeat has
// expired and hands them to memory extraction with bounded concurrency.
//
// Per-session lifecycle: ACTIVE (heartbeat within threshold) -> STALE
// (threshold exceeded, not yet extracted) -> EXTRACTED (one-shot marker set).
// EXTRACTED is terminal for an idle period; re-arming on resumed heartbeats
// is the store's policy, not the scanner's.
package scanner
