package document

import (
	"database/sql"
	"sort"
	"sync"
)

// OpenFunc opens a database handle for a connection string. Driver
// subpackages register one per driver name so that the engine never depends
// on a concrete driver at compile time.
type OpenFunc func(connectionString string) (*sql.DB, error)

// Global opener registry - populated at init() time by driver subpackages.
var (
	openersMu sync.RWMutex
	openers   = make(map[string]OpenFunc)
)

// RegisterOpener registers an opener under a driver name. Registering the
// same name twice replaces the previous opener; driver subpackages call this
// from init().
func RegisterOpener(name string, open OpenFunc) {
	openersMu.Lock()
	defer openersMu.Unlock()
	openers[name] = open
}

// lookupOpener returns the registered opener for a driver name.
func lookupOpener(name string) (OpenFunc, bool) {
	openersMu.RLock()
	defer openersMu.RUnlock()
	open, ok := openers[name]
	return open, ok
}

// RegisteredDrivers lists the driver names with registered openers, sorted.
func RegisteredDrivers() []string {
	openersMu.RLock()
	defer openersMu.RUnlock()
	names := make([]string, 0, len(openers))
	for name := range openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// driverImportHints maps known driver names to the subpackage whose blank
// import registers them. Used to build actionable errors when Prepare cannot
// find a driver.
var driverImportHints = map[string]string{
	"sqlite":   "github.com/youssefsiam38/agentmem/storage/document/sqlitedriver",
	"postgres": "github.com/youssefsiam38/agentmem/storage/document/postgresdriver",
	"pgx":      "github.com/youssefsiam38/agentmem/storage/document/pgxdriver",
}
