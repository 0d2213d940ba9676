package store

import (
	"context"
	"fmt"
	"regexp"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "index_blobs"

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateTable rejects table names that cannot be interpolated into SQL as-is.
func ValidateTable(table string) error {
	if !tableNameRe.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	return nil
}

func schema(table string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	name TEXT UNIQUE NOT NULL,
	content BLOB NOT NULL)`, table),
	}
}

// Init implements Store.
func (s *SQLiteStore) Init(ctx context.Context) (err error) {
	defer s.observe(ctx, "init", &err)()

	conn, err := s.db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("%w: acquire connection: %w", ErrInitialization, err)
	}
	defer conn.Close()

	for _, stmt := range schema(s.table) {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			log.WithField("table", s.table).WithError(err).Error("Failed to create blob table")
			return fmt.Errorf("%w: create table %s: %w", ErrInitialization, s.table, err)
		}
	}
	return nil
}
