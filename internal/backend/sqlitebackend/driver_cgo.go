//go:build cgo_sqlite

package sqlitebackend

import _ "github.com/mattn/go-sqlite3"

const driverName = "sqlite3"
