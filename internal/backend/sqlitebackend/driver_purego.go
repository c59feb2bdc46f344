//go:build !cgo_sqlite

package sqlitebackend

import _ "modernc.org/sqlite"

const driverName = "sqlite"
