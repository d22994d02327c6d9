// Package sqlstore is the relational system of record.  It runs on postgres
// in production and on sqlite for local development and tests.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	sq "github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

const sqliteFileName = "paysync.db"

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = fmt.Errorf("not found")
	// ErrDuplicate is returned when inserting a row whose key already exists.
	ErrDuplicate = fmt.Errorf("duplicate row")
	// ErrStatusConflict is returned when a conditional process update finds
	// the process in a status other than those expected.
	ErrStatusConflict = fmt.Errorf("process status changed")
)

// FS holds the migrations of both dialects.
//
//go:embed migrations/*/*.sql
var FS embed.FS

type Options struct {
	// PostgresURI selects postgres.  When empty sqlite is used.
	PostgresURI string
	// InMemory keeps the sqlite database in memory.  Each Open creates a
	// separate database.
	InMemory bool
	// Dir is the directory of the sqlite database file.
	Dir     string
	MaxOpen int
	Clock   clockwork.Clock
}

type Store struct {
	db     *sql.DB
	driver string
	clock  clockwork.Clock
}

// Open connects to the configured database and applies all migrations.
func Open(ctx context.Context, opts Options) (*Store, error) {
	sq.SetDefaultPrepared(true)

	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	var (
		db     *sql.DB
		driver string
		err    error
	)

	switch {
	case opts.PostgresURI != "":
		if !strings.HasPrefix(opts.PostgresURI, "postgres://") && !strings.HasPrefix(opts.PostgresURI, "postgresql://") {
			if u, perr := url.Parse(opts.PostgresURI); perr == nil {
				return nil, fmt.Errorf("unsupported database URL: %s", u.Redacted())
			}
			return nil, fmt.Errorf("unsupported database URL format")
		}
		driver = "postgres"
		db, err = sql.Open("pgx", opts.PostgresURI)
		if err == nil && opts.MaxOpen > 0 {
			db.SetMaxOpenConns(opts.MaxOpen)
		}
	case opts.InMemory:
		driver = "sqlite"
		name := "paysync_" + strings.ToLower(ulid.Make().String())
		db, err = sql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	default:
		driver = "sqlite"
		dir := opts.Dir
		if dir == "" {
			dir = "."
		}
		if dir, err = filepath.Abs(dir); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("error creating sqlite dir: %w", err)
		}
		db, err = sql.Open("sqlite", fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.Join(dir, sqliteFileName)))
	}
	if err != nil {
		return nil, fmt.Errorf("error opening %s: %w", driver, err)
	}

	if driver == "sqlite" {
		// sqlite allows one writer; serialising on a single connection
		// avoids SQLITE_BUSY under concurrent producers and consumers.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error connecting to %s: %w", driver, err)
	}

	if err := up(db, driver, opts); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	return &Store{db: db, driver: driver, clock: opts.Clock}, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) dialect() sq.DialectWrapper {
	if s.driver == "postgres" {
		return sq.Dialect("postgres")
	}
	return sq.Dialect("sqlite3")
}

func up(db *sql.DB, driver string, opts Options) error {
	var (
		err    error
		src    source.Driver
		dbDrv  database.Driver
		dbName string
	)

	if driver == "postgres" {
		if src, err = iofs.New(FS, path.Join("migrations", "postgres")); err != nil {
			return err
		}

		dbName = "postgres"
		parsed, err := url.Parse(opts.PostgresURI)
		if err != nil {
			return fmt.Errorf("error parsing postgres URI to retrieve DB name: invalid format")
		}
		if parsed.Path != "" && parsed.Path != "/" {
			dbName = parsed.Path[1:]
		}

		dbDrv, err = postgres.WithInstance(db, &postgres.Config{
			MigrationsTable: "migrations",
			DatabaseName:    dbName,
		})
		if err != nil {
			return err
		}
	} else {
		if src, err = iofs.New(FS, path.Join("migrations", "sqlite")); err != nil {
			return err
		}
		dbDrv, err = sqlite.WithInstance(db, &sqlite.Config{
			MigrationsTable: "migrations",
			NoTxWrap:        true,
		})
		if err != nil {
			return err
		}
		dbName = "sqlite"
	}

	m, err := migrate.NewWithInstance("iofs", src, dbName, dbDrv)
	if err != nil {
		return err
	}

	v, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}
	if dirty {
		// Migrations are idempotent, so a dirty version is re-run from the
		// version before it.
		target := -1
		if prev, err := src.Prev(v); err == nil {
			target = int(prev)
		}
		if err := m.Force(target); err != nil {
			return fmt.Errorf("error resetting dirty version %d: %w", v, err)
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
