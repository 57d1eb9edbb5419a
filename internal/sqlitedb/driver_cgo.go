//go:build !iqrah_purego

package sqlitedb

import (
	_ "github.com/mattn/go-sqlite3"
)

// driverName is the database/sql driver registered for this build. The cgo
// build (mattn/go-sqlite3) is the default; pass -tags iqrah_purego to select
// the pure-Go driver for CGO-free cross-compiles.
const driverName = "sqlite3"
