package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// ErrDirtySchema means a previous migration failed halfway and the schema
// needs manual repair before migrating again.
var ErrDirtySchema = errors.New("schema is dirty")

// Migration names one numbered schema change.
type Migration struct {
	Version int
	Name    string
}

// Migrations lists the embedded migrations sorted by version. Every version
// must ship both an up and a down script.
func Migrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	names := make(map[int]string)
	downs := make(map[int]bool)
	for _, entry := range entries {
		// 0002_venue_requests.up.sql -> version 2, name venue_requests
		prefix, rest, ok := strings.Cut(entry.Name(), "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		switch {
		case strings.HasSuffix(rest, ".up.sql"):
			names[version] = strings.TrimSuffix(rest, ".up.sql")
		case strings.HasSuffix(rest, ".down.sql"):
			downs[version] = true
		}
	}

	migrations := make([]Migration, 0, len(names))
	for version, name := range names {
		if !downs[version] {
			return nil, fmt.Errorf("migration %d has no down script", version)
		}
		migrations = append(migrations, Migration{Version: version, Name: name})
	}
	for version := range downs {
		if _, ok := names[version]; !ok {
			return nil, fmt.Errorf("migration %d has no up script", version)
		}
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Migrate applies every pending migration and returns the versions it applied.
func (s *Store) Migrate(ctx context.Context) (applied []int, err error) {
	migrations, err := Migrations()
	if err != nil {
		return nil, err
	}

	m, err := s.migrator(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, closeMigrator(m)) }()
	defer stopOnCancel(ctx, m)()

	before, err := schemaVersion(m)
	if err != nil {
		return nil, err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	after, err := schemaVersion(m)
	if err != nil {
		return nil, err
	}

	for _, mg := range migrations {
		if mg.Version > before && mg.Version <= after {
			applied = append(applied, mg.Version)
		}
	}
	return applied, nil
}

// Rollback reverts the most recently applied migration and returns its
// version, or 0 when nothing is applied.
func (s *Store) Rollback(ctx context.Context) (version int, err error) {
	m, err := s.migrator(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { err = errors.Join(err, closeMigrator(m)) }()
	defer stopOnCancel(ctx, m)()

	current, err := schemaVersion(m)
	if err != nil || current == 0 {
		return 0, err
	}
	if err := m.Steps(-1); err != nil {
		return 0, fmt.Errorf("rollback migration %d: %w", current, err)
	}
	return current, nil
}

// migrator runs migrations over one dedicated connection so closing it
// leaves the store's pool open.
func (s *Store) migrator(ctx context.Context) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("acquire migration connection: %w", err)
	}
	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
	if err != nil {
		_ = conn.Close()
		_ = src.Close()
		return nil, fmt.Errorf("init migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = driver.Close()
		_ = src.Close()
		return nil, fmt.Errorf("init migrator: %w", err)
	}
	return m, nil
}

func closeMigrator(m *migrate.Migrate) error {
	srcErr, dbErr := m.Close()
	return errors.Join(srcErr, dbErr)
}

// stopOnCancel asks m to stop after the running migration once ctx is done.
func stopOnCancel(ctx context.Context, m *migrate.Migrate) func() bool {
	return context.AfterFunc(ctx, func() {
		select {
		case m.GracefulStop <- true:
		default:
		}
	})
}

func schemaVersion(m *migrate.Migrate) (int, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("schema version: %w", err)
	}
	if dirty {
		return 0, fmt.Errorf("%w: version %d", ErrDirtySchema, v)
	}
	return int(v), nil
}
