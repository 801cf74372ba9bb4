package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	// _ "github.com/mattn/go-sqlite3" // better performance but requires gcc
	_ "modernc.org/sqlite"
)

// Open abre la base SQLite con foreign keys y busy_timeout. Se limita a una conexión:
// SQLite serializa las escrituras y ":memory:" es distinta por conexión.
func Open(path string) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// Los instantes se guardan como nanosegundos Unix (INTEGER) para poder compararlos en SQL.

func ToNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func FromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func NullableNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: ToNanos(*t), Valid: true}
}

func TimePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := FromNanos(n.Int64)
	return &t
}

// IsUniqueViolation detecta violaciones de UNIQUE / PRIMARY KEY.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		// SQLITE_CONSTRAINT_UNIQUE (2067) y SQLITE_CONSTRAINT_PRIMARYKEY (1555)
		return coder.Code() == 2067 || coder.Code() == 1555
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
