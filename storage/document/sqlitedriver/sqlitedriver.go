// Package sqlitedriver registers the pure-Go sqlite driver with the
// document backend under the name "sqlite". Blank-import it from the main
// package:
//
//	import _ "github.com/youssefsiam38/agentmem/storage/document/sqlitedriver"
package sqlitedriver

import (
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/youssefsiam38/agentmem/storage/document"
)

func init() {
	document.RegisterOpener("sqlite", func(connectionString string) (*sql.DB, error) {
		return sql.Open("sqlite", connectionString)
	})
}
