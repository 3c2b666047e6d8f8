package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/autoreply/internal/rules"
	"github.com/nextlevelbuilder/autoreply/internal/store"
)

// RuleStore implements store.RuleStore.
type RuleStore struct {
	db *sql.DB
}

const ruleSelectCols = `flavor, number, name, type, keywords, replies_mode, reply_template,
	target_type, target_users, access_type, defined_users,
	cooldown_seconds, min_delay_seconds, max_delay_seconds`

func (s *RuleStore) List(ctx context.Context, flavor rules.Flavor) ([]rules.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleSelectCols+` FROM rules WHERE flavor = ? ORDER BY number`, string(flavor))
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

func (s *RuleStore) Get(ctx context.Context, flavor rules.Flavor, number int) (*rules.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ruleSelectCols+` FROM rules WHERE flavor = ? AND number = ?`, string(flavor), number)
	rec, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return rec, err
}

func (s *RuleStore) Create(ctx context.Context, rec *rules.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rules WHERE flavor = ?`, string(rec.Flavor)).Scan(&count); err != nil {
		return fmt.Errorf("count rules: %w", err)
	}
	if rec.Number <= 0 || rec.Number > count {
		rec.Number = count + 1
	} else {
		if _, err := tx.ExecContext(ctx,
			`UPDATE rules SET number = -(number + 1) WHERE flavor = ? AND number >= ?`,
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
		 cooldown_seconds, min_delay_seconds, max_delay_seconds, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rec.Flavor), rec.Number, rec.Name, string(rec.Type), rec.Keywords,
		string(rec.RepliesMode), rec.Template,
		string(rec.TargetType), encodeList(rec.TargetUsers),
		string(rec.Access), encodeList(rec.DefinedUsers),
		rec.CooldownSeconds, rec.MinDelaySeconds, rec.MaxDelaySeconds, millis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return tx.Commit()
}

func (s *RuleStore) Update(ctx context.Context, rec *rules.Record) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rules SET name = ?, type = ?, keywords = ?, replies_mode = ?, reply_template = ?,
		 target_type = ?, target_users = ?, access_type = ?, defined_users = ?,
		 cooldown_seconds = ?, min_delay_seconds = ?, max_delay_seconds = ?, updated_at = ?
		 WHERE flavor = ? AND number = ?`,
		rec.Name, string(rec.Type), rec.Keywords, string(rec.RepliesMode), rec.Template,
		string(rec.TargetType), encodeList(rec.TargetUsers),
		string(rec.Access), encodeList(rec.DefinedUsers),
		rec.CooldownSeconds, rec.MinDelaySeconds, rec.MaxDelaySeconds, millis(time.Now()),
		string(rec.Flavor), rec.Number,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *RuleStore) Delete(ctx context.Context, flavor rules.Flavor, number int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM rules WHERE flavor = ? AND number = ?`, string(flavor), number)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE rules SET number = -(number - 1) WHERE flavor = ? AND number > ?`,
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
		`UPDATE rules SET number = -number WHERE flavor = ? AND number < 0`, string(flavor)); err != nil {
		return fmt.Errorf("renumber rules: %w", err)
	}
	return nil
}

func scanRule(row rowScanner) (*rules.Record, error) {
	var rec rules.Record
	var flavor, typ, mode, target, access, targetUsers, definedUsers string
	err := row.Scan(&flavor, &rec.Number, &rec.Name, &typ, &rec.Keywords, &mode, &rec.Template,
		&target, &targetUsers, &access, &definedUsers,
		&rec.CooldownSeconds, &rec.MinDelaySeconds, &rec.MaxDelaySeconds)
	if err != nil {
		return nil, err
	}
	rec.Flavor = rules.Flavor(flavor)
	rec.Type = rules.Type(typ)
	rec.RepliesMode = rules.RepliesMode(mode)
	rec.TargetType = rules.TargetType(target)
	rec.Access = rules.AccessType(access)
	if rec.TargetUsers, err = decodeList(targetUsers); err != nil {
		return nil, fmt.Errorf("decode target users: %w", err)
	}
	if rec.DefinedUsers, err = decodeList(definedUsers); err != nil {
		return nil, fmt.Errorf("decode defined users: %w", err)
	}
	return &rec, nil
}
