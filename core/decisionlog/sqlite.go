package decisionlog

import _ "modernc.org/sqlite"

var sqliteDialect = sqlDialect{
	driver: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS decisions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        step_id TEXT,
        ts INTEGER,
        iteration INTEGER,
        status TEXT,
        record TEXT
    );`,
		`CREATE INDEX IF NOT EXISTS decisions_ts ON decisions (ts);`,
	},
	bind: questionMark,
}

// SQLiteStore persists records to a SQLite database.
type SQLiteStore struct {
	sqlStore
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	s, err := openSQL(sqliteDialect, path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{s}, nil
}
