//go:build cgo

package store

import _ "github.com/tursodatabase/go-libsql"

// libsqlAvailable reports whether the libsql driver is linked in.
const libsqlAvailable = true
