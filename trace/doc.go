// Package trace ships session, turn and tool spans to an external tracing
// API over HTTP. Tracing is strictly observational: every call here logs
// and swallows its own failures, and a missing endpoint or token disables
// the client entirely. Nothing on the interactive path may block or fail
// because the span API is down.
package trace
