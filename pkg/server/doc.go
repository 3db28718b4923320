// Package server implements the weft runner service: an HTTP server that
// executes documents on behalf of authenticated users, stores published
// packages, and exposes run history, user administration, health, and
// metrics endpoints.
package server
