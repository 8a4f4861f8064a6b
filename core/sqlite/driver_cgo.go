//go:build cgo_sqlite

package sqlite

import (
	_ "github.com/mattn/go-sqlite3" // cgo SQLite driver
)

const (
	driverName    = "sqlite3"
	driverType    = "cgo"
	driverPackage = "github.com/mattn/go-sqlite3"
)
