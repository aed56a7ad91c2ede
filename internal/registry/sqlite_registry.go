package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rynowak/tye/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteRepository keeps documents in a local SQLite database.
type SQLiteRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteRepository opens or creates the database at path. Use ":memory:"
// for a throwaway store.
func NewSQLiteRepository(path string, logger zerolog.Logger) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases alive and serializes
	// writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	return &SQLiteRepository{
		db:     db,
		logger: logger.With().Str("component", "sqlite_repository").Logger(),
	}, nil
}

func (s *SQLiteRepository) Init(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS resources (
		id         TEXT PRIMARY KEY,
		type       TEXT NOT NULL,
		name       TEXT NOT NULL,
		document   TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_resources_type ON resources(type);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLiteRepository) List(ctx context.Context, subscriptionID, resourceGroup, resourceType string) ([]*domain.Container, error) {
	prefix := scopePrefix(subscriptionID, resourceGroup, resourceType)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document FROM resources WHERE substr(id, 1, ?) = ? ORDER BY name`,
		len(prefix), prefix,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*domain.Container{}
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		// Only direct children of the scope, not nested resource types.
		if strings.Contains(id[len(prefix):], "/") {
			continue
		}
		var c domain.Container
		if err := json.Unmarshal([]byte(doc), &c); err != nil {
			s.logger.Error().Err(err).Str("id", id).Msg("Skipping unreadable document")
			continue
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *SQLiteRepository) Get(ctx context.Context, id domain.ResourceID) (*domain.Container, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM resources WHERE id = ?`, id.Identity().String(),
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var c domain.Container
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return &c, nil
}

func (s *SQLiteRepository) Upsert(ctx context.Context, c *domain.Container) error {
	id, err := c.ResourceID()
	if err != nil {
		return err
	}
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", id, err)
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO resources (id, type, name, document, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET document = excluded.document, name = excluded.name, updated_at = excluded.updated_at`,
		id.Identity().String(), strings.ToLower(id.Type()), id.Name(), string(doc), now, now,
	)
	return err
}

func (s *SQLiteRepository) Delete(ctx context.Context, id domain.ResourceID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id.Identity().String())
	return err
}

func (s *SQLiteRepository) Close() error {
	return s.db.Close()
}
