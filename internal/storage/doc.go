// Package storage provides durable key/value stores for client-side state.
//
// The client persists exactly one value, the session token, under a fixed
// key. Backends:
//   - file: a YAML document on local disk (default)
//   - sqlite: a single-table SQLite database
//   - redis: keys under a configurable prefix, shared across machines
//   - memory: process-local, for tests and one-shot commands
package storage
