//go:build !sqlite3_cgo

package db

import (
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const driverID = "ncruces/go-sqlite3"
const driverName = "sqlite3"
const connParams = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
