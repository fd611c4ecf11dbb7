// Package pgxdriver registers the pgx PostgreSQL driver (through its
// database/sql adapter) with the document backend under the name "pgx".
// Blank-import it from the main package:
//
//	import _ "github.com/youssefsiam38/agentmem/storage/document/pgxdriver"
package pgxdriver

import (
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/youssefsiam38/agentmem/storage/document"
)

func init() {
	document.RegisterOpener("pgx", func(connectionString string) (*sql.DB, error) {
		return sql.Open("pgx", connectionString)
	})
}
