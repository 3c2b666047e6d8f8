package upgrade

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// State classifies a database schema relative to RequiredSchemaVersion.
type State int

const (
	StateEmpty   State = iota // no schema_migrations row yet
	StateBehind               // migrations pending
	StateCurrent              // matches this binary
	StateAhead                // written by a newer binary
	StateDirty                // a migration failed part way
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StateBehind:
		return "UPGRADE NEEDED"
	case StateCurrent:
		return "UP TO DATE"
	case StateAhead:
		return "BINARY TOO OLD"
	case StateDirty:
		return "DIRTY"
	}
	return "UNKNOWN"
}

var (
	ErrSchemaOutdated = errors.New("database schema is outdated")
	ErrSchemaDirty    = errors.New("database schema is dirty")
	ErrSchemaAhead    = errors.New("database schema is newer than this binary")
)

// Status is the outcome of CheckSchema.
type Status struct {
	Current  uint
	Required uint
	Dirty    bool
	Exists   bool // schema_migrations has a row
}

// State derives the schema state from the raw status.
func (s *Status) State() State {
	switch {
	case !s.Exists:
		return StateEmpty
	case s.Dirty:
		return StateDirty
	case s.Current == s.Required:
		return StateCurrent
	case s.Current > s.Required:
		return StateAhead
	}
	return StateBehind
}

// NeedsMigration is true when `migrate up` would change the schema.
func (s *Status) NeedsMigration() bool {
	st := s.State()
	return st == StateEmpty || st == StateBehind
}

// Err returns nil for a compatible schema and one of the ErrSchema* values otherwise.
func (s *Status) Err() error {
	switch s.State() {
	case StateCurrent:
		return nil
	case StateDirty:
		return ErrSchemaDirty
	case StateAhead:
		return ErrSchemaAhead
	}
	return ErrSchemaOutdated
}

// CheckSchema reads golang-migrate's bookkeeping table. A missing table reads
// as an empty schema.
func CheckSchema(ctx context.Context, db *sql.DB) (*Status, error) {
	s := &Status{Required: RequiredSchemaVersion}

	var table sql.NullString
	if err := db.QueryRowContext(ctx, "SELECT to_regclass('schema_migrations')::text").Scan(&table); err != nil {
		return nil, fmt.Errorf("lookup schema_migrations: %w", err)
	}
	if !table.Valid {
		return s, nil
	}

	err := db.QueryRowContext(ctx, "SELECT version, dirty FROM schema_migrations LIMIT 1").Scan(&s.Current, &s.Dirty)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	s.Exists = true
	return s, nil
}

// Advice is the operator-facing fix for an incompatible schema, or "" when
// nothing needs doing.
func (s *Status) Advice() string {
	switch s.State() {
	case StateDirty:
		prev := s.Current
		if prev > 0 {
			prev--
		}
		return fmt.Sprintf("Schema v%d is dirty: a migration failed part way.\n\n"+
			"  Fix:  autoreply migrate force %d\n"+
			"  Then: autoreply upgrade\n", s.Current, prev)
	case StateAhead:
		return fmt.Sprintf("Schema v%d was written by a newer autoreply (this binary requires v%d).\n\n"+
			"  Fix: install the newer autoreply binary.\n", s.Current, s.Required)
	case StateEmpty, StateBehind:
		return fmt.Sprintf("Schema v%d is behind the required v%d.\n\n"+
			"  Run: autoreply upgrade\n"+
			"  Or:  autoreply migrate up   (SQL only, skips data hooks)\n\n"+
			"  Set AUTOREPLY_AUTO_UPGRADE=true to upgrade on gateway startup.\n", s.Current, s.Required)
	}
	return ""
}
