// Package catalog is the durable relational store of installed
// packages, assets, dependencies, conflicts, categories, log entries,
// and settings (spec §4.3).
//
// The teacher repository backs its equivalent store
// (datastore/postgres) with a pooled *pgxpool.Pool because it indexes
// many concurrently-scanned container layers. This catalog is opened
// for exclusive read-write by exactly one live engine (spec §5
// "Shared-resource policy") — there is no pool to manage — so it is
// built on database/sql over modernc.org/sqlite, a dependency the
// teacher module already carries (there, to parse rpm/apk package
// databases; here, as the catalog's storage engine itself). The query
// builder (doug-martin/goqu) and the promauto counter/histogram and
// zlog-contextual-logging idioms are carried over unchanged from
// datastore/postgres.
package catalog

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"
	sqlite3 "modernc.org/sqlite"

	"github.com/MidnightBSD/mport/version"
)

// dialect is the goqu dialect every query in this package is built
// with; sqlite3's placeholder style ('?') and lack of RETURNING-by-
// default are both respected by goqu's sqlite3 dialect plugin.
var dialect = goqu.Dialect("sqlite3")

var (
	queryCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mport",
			Subsystem: "catalog",
			Name:      "queries_total",
			Help:      "Total number of catalog queries issued, by method.",
		},
		[]string{"method"},
	)
	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mport",
			Subsystem: "catalog",
			Name:      "query_duration_seconds",
			Help:      "Duration of catalog queries, by method.",
		},
		[]string{"method"},
	)
)

// Store is the catalog's handle on the underlying database. All
// methods are safe to call from one goroutine at a time; the catalog
// itself assumes a single exclusive writer (spec §5), not internal
// mutual exclusion.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS packages (
	name             TEXT PRIMARY KEY,
	version          TEXT NOT NULL,
	origin           TEXT NOT NULL,
	prefix           TEXT NOT NULL,
	os_release       TEXT NOT NULL DEFAULT '',
	cpe              TEXT NOT NULL DEFAULT '',
	flavor           TEXT NOT NULL DEFAULT '',
	automatic        INTEGER NOT NULL DEFAULT 0,
	locked           INTEGER NOT NULL DEFAULT 0,
	no_provide_shlib INTEGER NOT NULL DEFAULT 0,
	deprecated       TEXT NOT NULL DEFAULT '',
	expiration_date  TEXT NOT NULL DEFAULT '',
	install_date     TEXT NOT NULL,
	type             TEXT NOT NULL DEFAULT 'application',
	flatsize         INTEGER NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'dirty'
);
CREATE INDEX IF NOT EXISTS packages_origin_idx ON packages(origin);
CREATE INDEX IF NOT EXISTS packages_name_lower_idx ON packages(name COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS assets (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	pkg      TEXT NOT NULL REFERENCES packages(name) ON DELETE CASCADE,
	kind     TEXT NOT NULL,
	path     TEXT NOT NULL DEFAULT '',
	checksum TEXT NOT NULL DEFAULT '',
	owner    TEXT NOT NULL DEFAULT '',
	grp      TEXT NOT NULL DEFAULT '',
	mode     TEXT NOT NULL DEFAULT '',
	seq      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS assets_pkg_idx ON assets(pkg);
CREATE INDEX IF NOT EXISTS assets_path_idx ON assets(path);

CREATE TABLE IF NOT EXISTS depends (
	pkg            TEXT NOT NULL REFERENCES packages(name) ON DELETE CASCADE,
	depend_pkg     TEXT NOT NULL,
	depend_version TEXT NOT NULL DEFAULT '',
	depend_origin  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (pkg, depend_pkg)
);
CREATE INDEX IF NOT EXISTS depends_depend_pkg_idx ON depends(depend_pkg);

CREATE TABLE IF NOT EXISTS conflicts (
	pkg              TEXT NOT NULL REFERENCES packages(name) ON DELETE CASCADE,
	conflict_pkg     TEXT NOT NULL,
	conflict_version TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (pkg, conflict_pkg)
);

CREATE TABLE IF NOT EXISTS categories (
	pkg      TEXT NOT NULL REFERENCES packages(name) ON DELETE CASCADE,
	category TEXT NOT NULL,
	PRIMARY KEY (pkg, category)
);

CREATE TABLE IF NOT EXISTS log (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	pkg     TEXT NOT NULL,
	version TEXT NOT NULL,
	at      TEXT NOT NULL,
	message TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS log_pkg_idx ON log(pkg);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS services (
	pkg  TEXT NOT NULL REFERENCES packages(name) ON DELETE CASCADE,
	name TEXT NOT NULL,
	PRIMARY KEY (pkg, name)
);

CREATE TABLE IF NOT EXISTS scripts (
	pkg  TEXT NOT NULL REFERENCES packages(name) ON DELETE CASCADE,
	slot TEXT NOT NULL,
	body TEXT NOT NULL,
	PRIMARY KEY (pkg, slot)
);

CREATE TABLE IF NOT EXISTS moved (
	origin        TEXT PRIMARY KEY,
	moved_to      TEXT NOT NULL DEFAULT '',
	moved_to_pkg  TEXT NOT NULL DEFAULT '',
	expiry_date   TEXT NOT NULL DEFAULT '',
	reason        TEXT NOT NULL DEFAULT ''
);
`

// registerVersionCompare registers a deterministic SQL scalar function,
// version_cmp(a, b), implementing §4.3's "custom version-ordering
// predicate callable from within query expressions" over version.Compare.
func registerVersionCompare() error {
	return sqlite3.RegisterDeterministicScalarFunction("version_cmp", 2,
		func(_ *sqlite3.FunctionContext, args []driver.Value) (driver.Value, error) {
			a, _ := args[0].(string)
			b, _ := args[1].(string)
			return int64(version.Compare(a, b)), nil
		})
}

func init() {
	if err := registerVersionCompare(); err != nil {
		// The predicate is registered once per process, here rather
		// than in Open; a registration error is ignored.
		_ = err
	}
}

// Open opens (creating if necessary) the catalog database at path and
// applies the schema. Use ":memory:" for a throwaway store in tests.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // spec §5: exclusive single writer

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: apply schema: %w", err)
	}

	zlog.Debug(ctx).Str("path", path).Msg("catalog opened")
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for components (the install and
// remove engines' scoped transactions, tests) that need to run ad-hoc
// statements or transactions the Store doesn't wrap a method for.
func (s *Store) DB() *sql.DB { return s.db }
