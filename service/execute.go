package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/satishbabariya/relq/runtime/remote"
)

// commandText prefixes the statement with its query hints, one per line.
func commandText(cmd remote.Command) string {
	if len(cmd.QueryHints) == 0 {
		return cmd.SQL
	}
	return strings.Join(cmd.QueryHints, "\n") + "\n" + cmd.SQL
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Service) decode(configuration string, payload []byte, updates bool) (*Configuration, *remote.Payload, error) {
	c, err := s.lookup(configuration)
	if err != nil {
		return nil, nil, err
	}
	if updates && !s.allowUpdates {
		return nil, nil, fmt.Errorf("configuration %s: %w", configuration, ErrUpdatesNotAllowed)
	}
	p, err := remote.Decode(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("configuration %s: %w: %w", configuration, ErrBadPayload, err)
	}
	return c, p, nil
}

func exec(ctx context.Context, db execer, configuration string, index int, cmd remote.Command) (int, error) {
	res, err := db.ExecContext(ctx, commandText(cmd), cmd.Values()...)
	if err != nil {
		return 0, &CommandError{Configuration: configuration, Index: index, SQL: cmd.SQL, Cause: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Some drivers cannot report a count.
		return -1, nil
	}
	return int(n), nil
}

// ExecuteNonQuery runs the single command in payload and returns the
// affected row count.
func (s *Service) ExecuteNonQuery(ctx context.Context, configuration string, payload []byte) (int, error) {
	c, p, err := s.decode(configuration, payload, true)
	if err != nil {
		return 0, err
	}
	if len(p.Commands) != 1 {
		return 0, fmt.Errorf("configuration %s: %w: expected one command, got %d", configuration, ErrBadPayload, len(p.Commands))
	}
	s.logger.Debug("execute non-query", "configuration", configuration)
	return exec(ctx, c.DB, configuration, 0, p.Commands[0])
}

// ExecuteBatch runs every command in payload in one transaction and
// returns the total affected row count. Either every command is applied
// or none is.
func (s *Service) ExecuteBatch(ctx context.Context, configuration string, payload []byte) (int, error) {
	c, p, err := s.decode(configuration, payload, true)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("execute batch", "configuration", configuration, "commands", len(p.Commands))

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("configuration %s: begin batch: %w", configuration, err)
	}

	total := 0
	for i, cmd := range p.Commands {
		n, err := exec(ctx, tx, configuration, i, cmd)
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return 0, errors.Join(err, fmt.Errorf("configuration %s: rollback batch: %w", configuration, rbErr))
			}
			s.logger.Warn("batch rolled back", "configuration", configuration, "command", i, "error", err)
			return 0, err
		}
		if n > 0 {
			total += n
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("configuration %s: commit batch: %w", configuration, err)
	}
	return total, nil
}

// ExecuteScalar runs the command in payload and returns the first column
// of the first row, or nil when there are no rows.
func (s *Service) ExecuteScalar(ctx context.Context, configuration string, payload []byte) (any, error) {
	rs, err := s.query(ctx, configuration, payload, 1)
	if err != nil {
		return nil, err
	}
	if len(rs.Rows) == 0 || len(rs.Rows[0]) == 0 {
		return nil, nil
	}
	return rs.Rows[0][0], nil
}

// ExecuteReader runs the command in payload and returns every row.
func (s *Service) ExecuteReader(ctx context.Context, configuration string, payload []byte) (*remote.ResultSet, error) {
	return s.query(ctx, configuration, payload, -1)
}

func (s *Service) query(ctx context.Context, configuration string, payload []byte, limit int) (*remote.ResultSet, error) {
	c, p, err := s.decode(configuration, payload, false)
	if err != nil {
		return nil, err
	}
	if len(p.Commands) != 1 {
		return nil, fmt.Errorf("configuration %s: %w: expected one command, got %d", configuration, ErrBadPayload, len(p.Commands))
	}
	cmd := p.Commands[0]
	s.logger.Debug("execute query", "configuration", configuration)

	rows, err := c.DB.QueryContext(ctx, commandText(cmd), cmd.Values()...)
	if err != nil {
		return nil, &CommandError{Configuration: configuration, SQL: cmd.SQL, Cause: err}
	}
	defer rows.Close()
	return scanRows(rows, limit)
}

// scanRows materializes up to limit rows; a negative limit reads all.
func scanRows(rows *sql.Rows, limit int) (*remote.ResultSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}
	rs := &remote.ResultSet{Columns: columns, Rows: [][]any{}}

	for rows.Next() {
		if limit >= 0 && len(rs.Rows) >= limit {
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rs, nil
}
