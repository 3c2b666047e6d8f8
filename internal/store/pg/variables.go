package pg

import (
	"context"
	"database/sql"

	"github.com/nextlevelbuilder/autoreply/internal/store"
)

// PGVariableStore implements store.VariableStore backed by Postgres.
type PGVariableStore struct {
	db *sql.DB
}

func NewPGVariableStore(db *sql.DB) *PGVariableStore {
	return &PGVariableStore{db: db}
}

func (s *PGVariableStore) ListVariables(ctx context.Context) ([]store.Variable, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM static_variables ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Variable
	for rows.Next() {
		var v store.Variable
		if err := rows.Scan(&v.Name, &v.Value); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PGVariableStore) SetVariable(ctx context.Context, v store.Variable) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO static_variables (name, value, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		v.Name, v.Value)
	return err
}

func (s *PGVariableStore) DeleteVariable(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM static_variables WHERE name = $1`, name)
	if err != nil {
		return err
	}
	return requireRow(res)
}
