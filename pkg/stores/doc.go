// Package stores provides the runner service's persistence layer: user
// accounts with permission bits and per-invocation run history, backed by
// SQLite with embedded migrations.
package stores
