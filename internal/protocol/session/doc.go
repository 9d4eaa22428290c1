// Package session owns the client side of a scope connection.
//
// Ownership boundary:
// - services.enable handshake
// - tagged request/response dispatch and the pending call table
// - pushed event frames
// - typed message codecs for every bound command
// - retry/backoff primitives
package session
