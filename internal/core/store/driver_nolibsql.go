//go:build !cgo

package store

// go-libsql needs cgo. Local libsql stores fall back to the pure-Go sqlite
// driver; remote ones fail with ErrLibsqlUnavailable.
const libsqlAvailable = false
