package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/nextlevelbuilder/autoreply/internal/rules"
	"github.com/nextlevelbuilder/autoreply/internal/store"
)

// PGRuleStore implements store.RuleStore backed by Postgres.
type PGRuleStore struct {
	db *sql.DB
}

func NewPGRuleStore(db *sql.DB) *PGRuleStore {
	return &PGRuleStore{db: db}
}

const ruleSelectCols = `flavor, number, name, type, keywords, replies_mode, reply_template,
	target_type, target_users, access_type, defined_users,
	cooldown_seconds, min_delay_seconds, max_delay_seconds`

func (s *PGRuleStore) List(ctx context.Context, flavor rules.Flavor) ([]rules.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleSelectCols+` FROM rules WHERE flavor = $1 ORDER BY number`, string(flavor))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rules.Record
	for rows.Next() {
		rec, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *PGRuleStore) Get(ctx context.Context, flavor rules.Flavor, number int) (*rules.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ruleSelectCols+` FROM rules WHERE flavor = $1 AND number = $2`, string(flavor), number)
	rec, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return rec, err
}

// Create inserts rec at rec.Number, shifting later rules down. A zero or
// out-of-range number appends; rec.Number is updated to the final position.
func (s *PGRuleStore) Create(ctx context.Context, rec *rules.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rules WHERE flavor = $1`, string(rec.Flavor)).Scan(&count); err != nil {
		return fmt.Errorf("count rules: %w", err)
	}
	if rec.Number <= 0 || rec.Number > count {
		rec.Number = count + 1
	} else {
		// Two-step shift keeps (flavor, number) unique after every row update.
		if _, err := tx.ExecContext(ctx,
			`UPDATE rules SET number = -(number + 1) WHERE flavor = $1 AND number >= $2`,
			string(rec.Flavor), rec.Number); err != nil {
			return fmt.Errorf("shift rules: %w", err)
		}
		if err := flipNegative(ctx, tx, rec.Flavor); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO rules (flavor, number, name, type, keywords, replies_mode, reply_template,
		 target_type, target_users, access_type, defined_users,
		 cooldown_seconds, min_delay_seconds, max_delay_seconds, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())`,
		string(rec.Flavor), rec.Number, rec.Name, string(rec.Type), rec.Keywords,
		string(rec.RepliesMode), rec.Template,
		string(rec.TargetType), pq.Array(nonNil(rec.TargetUsers)),
		string(rec.Access), pq.Array(nonNil(rec.DefinedUsers)),
		rec.CooldownSeconds, rec.MinDelaySeconds, rec.MaxDelaySeconds,
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return tx.Commit()
}

func (s *PGRuleStore) Update(ctx context.Context, rec *rules.Record) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rules SET name = $3, type = $4, keywords = $5, replies_mode = $6, reply_template = $7,
		 target_type = $8, target_users = $9, access_type = $10, defined_users = $11,
		 cooldown_seconds = $12, min_delay_seconds = $13, max_delay_seconds = $14, updated_at = NOW()
		 WHERE flavor = $1 AND number = $2`,
		string(rec.Flavor), rec.Number, rec.Name, string(rec.Type), rec.Keywords,
		string(rec.RepliesMode), rec.Template,
		string(rec.TargetType), pq.Array(nonNil(rec.TargetUsers)),
		string(rec.Access), pq.Array(nonNil(rec.DefinedUsers)),
		rec.CooldownSeconds, rec.MinDelaySeconds, rec.MaxDelaySeconds,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Delete removes a rule and closes the gap in numbering.
func (s *PGRuleStore) Delete(ctx context.Context, flavor rules.Flavor, number int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM rules WHERE flavor = $1 AND number = $2`, string(flavor), number)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE rules SET number = -(number - 1) WHERE flavor = $1 AND number > $2`,
		string(flavor), number); err != nil {
		return fmt.Errorf("renumber rules: %w", err)
	}
	if err := flipNegative(ctx, tx, flavor); err != nil {
		return err
	}
	return tx.Commit()
}

func flipNegative(ctx context.Context, tx *sql.Tx, flavor rules.Flavor) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE rules SET number = -number WHERE flavor = $1 AND number < 0`, string(flavor)); err != nil {
		return fmt.Errorf("renumber rules: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*rules.Record, error) {
	var rec rules.Record
	var flavor, typ, mode, target, access string
	var targetUsers, definedUsers []string
	err := row.Scan(&flavor, &rec.Number, &rec.Name, &typ, &rec.Keywords, &mode, &rec.Template,
		&target, pq.Array(&targetUsers), &access, pq.Array(&definedUsers),
		&rec.CooldownSeconds, &rec.MinDelaySeconds, &rec.MaxDelaySeconds)
	if err != nil {
		return nil, err
	}
	rec.Flavor = rules.Flavor(flavor)
	rec.Type = rules.Type(typ)
	rec.RepliesMode = rules.RepliesMode(mode)
	rec.TargetType = rules.TargetType(target)
	rec.Access = rules.AccessType(access)
	if len(targetUsers) > 0 {
		rec.TargetUsers = targetUsers
	}
	if len(definedUsers) > 0 {
		rec.DefinedUsers = definedUsers
	}
	return &rec, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
