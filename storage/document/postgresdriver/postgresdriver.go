// Package postgresdriver registers the lib/pq PostgreSQL driver with the
// document backend under the name "postgres". Blank-import it from the main
// package:
//
//	import _ "github.com/youssefsiam38/agentmem/storage/document/postgresdriver"
package postgresdriver

import (
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/youssefsiam38/agentmem/storage/document"
)

func init() {
	document.RegisterOpener("postgres", func(connectionString string) (*sql.DB, error) {
		return sql.Open("postgres", connectionString)
	})
}
