package decisionlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
)

// sqlDialect is what differs between the SQL backends.
type sqlDialect struct {
	driver string
	schema []string
	// bind returns the placeholder of the n-th argument, starting at 1.
	bind func(n int) string
}

func questionMark(int) string { return "?" }

func dollar(n int) string { return "$" + strconv.Itoa(n) }

// sqlStore keeps each record as JSON next to the columns queries filter on.
type sqlStore struct {
	db *sql.DB
	d  sqlDialect
}

func openSQL(d sqlDialect, dsn string) (sqlStore, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return sqlStore{}, err
	}
	for _, stmt := range d.schema {
		if _, err = db.Exec(stmt); err != nil {
			break
		}
	}
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			return sqlStore{}, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return sqlStore{}, err
	}
	return sqlStore{db: db, d: d}, nil
}

// Append writes the record to the database.
func (s sqlStore) Append(ctx context.Context, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	insert := fmt.Sprintf(`INSERT INTO decisions (step_id, ts, iteration, status, record) VALUES (%s, %s, %s, %s, %s)`,
		s.d.bind(1), s.d.bind(2), s.d.bind(3), s.d.bind(4), s.d.bind(5))
	_, err = s.db.ExecContext(ctx, insert,
		rec.StepID, rec.Timestamp.UnixNano(), rec.Iteration, rec.Status, string(b))
	return err
}

func (s sqlStore) selectQuery(q Query) (string, []any) {
	var args []any
	query := `SELECT record FROM decisions WHERE 1=1`
	add := func(cond string, v any) {
		args = append(args, v)
		query += ` AND ` + cond + ` ` + s.d.bind(len(args))
	}
	if !q.Start.IsZero() {
		add("ts >=", q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		add("ts <=", q.End.UnixNano())
	}
	if q.Status != "" {
		add("status =", q.Status)
	}
	return query + ` ORDER BY ts, id`, args
}

// Query returns records matching q ordered by horizon start.
func (s sqlStore) Query(ctx context.Context, q Query) ([]Record, error) {
	query, args := s.selectQuery(q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []Record
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r Record
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s sqlStore) Close() error { return s.db.Close() }
