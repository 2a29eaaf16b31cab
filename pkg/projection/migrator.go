// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package projection

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	_ "github.com/teradata-labs/swarm/internal/sqlitedriver" // registers "sqlite3" driver

	"github.com/teradata-labs/swarm/pkg/observability"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Schema version carried in the projection's own metadata; a mismatch at
// open time triggers a rename-and-rebuild.
const ProjectionVersion = 1

// Migration is a single versioned schema step.
type Migration struct {
	Version     int
	Description string
	UpSQL       string
	DownSQL     string
}

// Migrator applies the embedded SQL migrations against a projection's
// SQLite connection. A sync.Mutex, not an advisory lock, serializes
// migration runs within the process, since SQLite has no equivalent.
type Migrator struct {
	db         *sql.DB
	tracer     observability.Tracer
	migrations []Migration
	mu         sync.Mutex
}

// NewMigrator loads the embedded migrations and sets a busy_timeout so
// concurrent readers wait rather than fail immediately on lock contention.
func NewMigrator(db *sql.DB, tracer observability.Tracer) (*Migrator, error) {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("projection: set busy_timeout: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return nil, fmt.Errorf("projection: load migrations: %w", err)
	}

	return &Migrator{db: db, tracer: tracer, migrations: migrations}, nil
}

// MigrateUp applies every pending migration in version order.
func (m *Migrator) MigrateUp(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, span := m.tracer.StartSpan(ctx, "projection.migrate_up")
	defer m.tracer.EndSpan(span)

	if err := m.ensureMigrationsTable(ctx); err != nil {
		span.RecordError(err)
		return err
	}

	current, err := m.currentVersionLocked(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttribute("current_version", current)

	applied := 0
	for _, mig := range m.migrations {
		if mig.Version <= current {
			continue
		}
		if err := m.applyMigration(ctx, mig); err != nil {
			span.RecordError(err)
			return fmt.Errorf("projection: migration %d: %w", mig.Version, err)
		}
		applied++
	}
	span.SetAttribute("migrations_applied", applied)
	return nil
}

// CurrentVersion returns the highest applied migration version, 0 if the
// schema_migrations table does not exist yet.
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentVersionLocked(ctx)
}

func (m *Migrator) currentVersionLocked(ctx context.Context) (int, error) {
	var tableCount int
	if err := m.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_migrations'",
	).Scan(&tableCount); err != nil {
		return 0, fmt.Errorf("projection: check schema_migrations: %w", err)
	}
	if tableCount == 0 {
		return 0, nil
	}

	var version int
	if err := m.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations",
	).Scan(&version); err != nil {
		return 0, fmt.Errorf("projection: read current version: %w", err)
	}
	return version, nil
}

func (m *Migrator) ensureMigrationsTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			description TEXT
		)
	`)
	return err
}

func (m *Migrator) applyMigration(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, mig.UpSQL); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, description) VALUES (?, ?) ON CONFLICT (version) DO NOTHING",
		mig.Version, mig.Description,
	); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}

// loadMigrations reads the embedded SQL files and pairs up/down files by
// their "000001_description.{up,down}.sql" version prefix.
func loadMigrations() ([]Migration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	upFiles := make(map[int]string)
	downFiles := make(map[int]string)
	descriptions := make(map[int]string)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}

		parts := strings.SplitN(name, "_", 2)
		if len(parts) < 2 {
			continue
		}
		version, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}

		content, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}

		remainder := parts[1]
		if desc, ok := strings.CutSuffix(remainder, ".up.sql"); ok {
			descriptions[version] = desc
			upFiles[version] = string(content)
		} else if strings.HasSuffix(remainder, ".down.sql") {
			downFiles[version] = string(content)
		}
	}

	var versions []int
	for v := range upFiles {
		versions = append(versions, v)
	}
	sort.Ints(versions)

	migrations := make([]Migration, 0, len(versions))
	for _, v := range versions {
		migrations = append(migrations, Migration{
			Version:     v,
			Description: descriptions[v],
			UpSQL:       upFiles[v],
			DownSQL:     downFiles[v],
		})
	}
	return migrations, nil
}
