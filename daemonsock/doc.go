// Package daemonsock talks to the external code-structure daemon over its
// local unix socket. The protocol is newline-delimited JSON: one request
// object out, one response object back, connection per command. The daemon
// answers every command with a status of ok, unavailable or indexing;
// anything but ok makes Search fall over to a plain text scan of the
// project tree so callers always get an answer.
package daemonsock
