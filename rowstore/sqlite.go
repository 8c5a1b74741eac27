//go:build unix

package rowstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/paretodb/internal/flock"

	_ "modernc.org/sqlite"
)

const (
	tableName = "data"
	// maxInList bounds the number of bound row ids per IN (...) clause.
	maxInList = 500
)

// SQLiteStore is a Store backed by one sqlite file.
type SQLiteStore struct {
	path string

	mu    sync.RWMutex
	db    *sql.DB
	lock  *flock.Lock
	types map[string]Type
}

// NewSQLiteStore returns a store for the sqlite file at path. Call Init before use.
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	dsn := "file:" + s.path + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	lock, err := flock.New(s.path + ".lock")
	if err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	s.lock = lock
	return nil
}

func (s *SQLiteStore) CreateTable(ctx context.Context, columns []Column) error {
	sec, err := s.lockSection(ctx, false)
	if err != nil {
		return err
	}
	defer sec.Release()

	existing, err := tableColumns(ctx, sec.conn)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrTableExists
	}

	defs := make([]string, len(columns))
	for i, c := range columns {
		typ, err := sqlType(c.Type)
		if err != nil {
			return err
		}
		defs[i] = quote(c.Name) + " " + typ
	}

	if _, err := sec.conn.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", tableName, strings.Join(defs, ", "))); err != nil {
		return err
	}
	return sec.Commit()
}

func (s *SQLiteStore) Columns(ctx context.Context) ([]Column, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	return tableColumns(ctx, db)
}

func (s *SQLiteStore) Lock(ctx context.Context) (Section, error) {
	return s.lockSection(ctx, true)
}

func (s *SQLiteStore) lockSection(ctx context.Context, needTable bool) (*sqliteSection, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	if err := s.lock.Lock(ctx); err != nil {
		return nil, err
	}

	// Once the lock is held the section runs to completion.
	bg := context.WithoutCancel(ctx)

	conn, err := db.Conn(bg)
	if err != nil {
		_ = s.lock.Unlock()
		return nil, err
	}
	if _, err := conn.ExecContext(bg, "BEGIN IMMEDIATE"); err != nil {
		_ = conn.Close()
		_ = s.lock.Unlock()
		return nil, err
	}

	sec := &sqliteSection{s: s, conn: conn}
	if needTable {
		if _, err := s.columnTypes(bg, conn); err != nil {
			_ = sec.Release()
			return nil, err
		}
	}
	return sec, nil
}

func (s *SQLiteStore) InsertRows(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	var last int64
	err := s.autocommit(ctx, func(q Querier) error {
		var err error
		last, err = q.InsertRows(ctx, columns, rows)
		return err
	})
	return last, err
}

func (s *SQLiteStore) UpdateCells(ctx context.Context, columns []string, values [][]any, rowIDs []int64) error {
	return s.autocommit(ctx, func(q Querier) error {
		return q.UpdateCells(ctx, columns, values, rowIDs)
	})
}

func (s *SQLiteStore) SelectColumns(ctx context.Context, columns []Column, rowIDs []int64) (*Frame, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	return selectColumns(ctx, db, columns, rowIDs)
}

func (s *SQLiteStore) MaxInt(ctx context.Context, column string) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	return maxInt(ctx, db, column)
}

func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	return count(ctx, db)
}

// Backup writes a consistent copy of the database to dst, which must not exist.
// Writers are excluded for the duration of the copy.
func (s *SQLiteStore) Backup(ctx context.Context, dst string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	if err := s.lock.Lock(ctx); err != nil {
		return err
	}
	defer s.lock.Unlock()

	_, err = db.ExecContext(ctx, "VACUUM INTO ?", dst)
	return err
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	if lerr := s.lock.Close(); lerr != nil && err == nil {
		err = lerr
	}
	s.db = nil
	s.lock = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

// columnTypes returns the cached column types, loading them on first use.
func (s *SQLiteStore) columnTypes(ctx context.Context, q dbtx) (map[string]Type, error) {
	s.mu.RLock()
	types := s.types
	s.mu.RUnlock()
	if types != nil {
		return types, nil
	}

	cols, err := tableColumns(ctx, q)
	if err != nil {
		return nil, err
	}
	if cols == nil {
		return nil, ErrNoTable
	}

	types = make(map[string]Type, len(cols))
	for _, c := range cols {
		types[c.Name] = c.Type
	}

	s.mu.Lock()
	s.types = types
	s.mu.Unlock()
	return types, nil
}

func (s *SQLiteStore) autocommit(ctx context.Context, fn func(q Querier) error) error {
	sec, err := s.Lock(ctx)
	if err != nil {
		return err
	}
	defer sec.Release()

	if err := fn(sec); err != nil {
		return err
	}
	return sec.Commit()
}

type sqliteSection struct {
	s         *SQLiteStore
	conn      *sql.Conn
	committed bool
	done      bool
}

func (t *sqliteSection) InsertRows(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if t.done || t.committed {
		return 0, ErrSectionDone
	}
	types, err := t.s.columnTypes(ctx, t.conn)
	if err != nil {
		return 0, err
	}
	return insertRows(ctx, t.conn, types, columns, rows)
}

func (t *sqliteSection) UpdateCells(ctx context.Context, columns []string, values [][]any, rowIDs []int64) error {
	if t.done || t.committed {
		return ErrSectionDone
	}
	types, err := t.s.columnTypes(ctx, t.conn)
	if err != nil {
		return err
	}
	return updateCells(ctx, t.conn, types, columns, values, rowIDs)
}

func (t *sqliteSection) SelectColumns(ctx context.Context, columns []Column, rowIDs []int64) (*Frame, error) {
	if t.done {
		return nil, ErrSectionDone
	}
	return selectColumns(ctx, t.conn, columns, rowIDs)
}

func (t *sqliteSection) MaxInt(ctx context.Context, column string) (int64, error) {
	if t.done {
		return 0, ErrSectionDone
	}
	return maxInt(ctx, t.conn, column)
}

func (t *sqliteSection) Count(ctx context.Context) (int64, error) {
	if t.done {
		return 0, ErrSectionDone
	}
	return count(ctx, t.conn)
}

func (t *sqliteSection) Commit() error {
	if t.done || t.committed {
		return ErrSectionDone
	}
	if _, err := t.conn.ExecContext(context.Background(), "COMMIT"); err != nil {
		return err
	}
	t.committed = true
	return nil
}

func (t *sqliteSection) Release() error {
	if t.done {
		return nil
	}
	t.done = true

	var err error
	if !t.committed {
		_, err = t.conn.ExecContext(context.Background(), "ROLLBACK")
	}
	if cerr := t.conn.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if uerr := t.s.lock.Unlock(); uerr != nil && err == nil {
		err = uerr
	}
	return err
}

// dbtx is satisfied by *sql.DB and *sql.Conn.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

func tableColumns(ctx context.Context, q dbtx) ([]Column, error) {
	rows, err := q.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, err
		}
		t, err := parseSQLType(typ)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		cols = append(cols, Column{Name: name, Type: t})
	}
	return cols, rows.Err()
}

func insertRows(ctx context.Context, q dbtx, types map[string]Type, columns []string, rows [][]any) (int64, error) {
	colTypes, err := lookupTypes(types, columns)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		var last int64
		err := q.QueryRowContext(ctx, fmt.Sprintf("SELECT IFNULL(MAX(rowid), 0) FROM %s", tableName)).Scan(&last)
		return last, err
	}

	stmt, err := q.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tableName, quoteAll(columns), placeholders(len(columns))))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var last int64
	for _, r := range rows {
		args, err := normalizeRow(colTypes, columns, r)
		if err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, err
		}
		if last, err = res.LastInsertId(); err != nil {
			return 0, err
		}
	}
	return last, nil
}

func updateCells(ctx context.Context, q dbtx, types map[string]Type, columns []string, values [][]any, rowIDs []int64) error {
	colTypes, err := lookupTypes(types, columns)
	if err != nil {
		return err
	}

	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = quote(c) + " = ?"
	}
	assign := strings.Join(sets, ", ")

	if rowIDs == nil && len(values) == 1 {
		args, err := normalizeRow(colTypes, columns, values[0])
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET %s", tableName, assign), args...)
		return err
	}

	if rowIDs == nil {
		frame, err := selectColumns(ctx, q, nil, nil)
		if err != nil {
			return err
		}
		rowIDs = frame.RowIDs
	}
	if err := checkValues(values, len(columns), len(rowIDs)); err != nil {
		return err
	}

	stmt, err := q.PrepareContext(ctx, fmt.Sprintf("UPDATE %s SET %s WHERE rowid = ?", tableName, assign))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for k, id := range rowIDs {
		src := values[0]
		if len(values) > 1 {
			src = values[k]
		}
		args, err := normalizeRow(colTypes, columns, src)
		if err != nil {
			return err
		}
		res, err := stmt.ExecContext(ctx, append(args, id)...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return fmt.Errorf("rowstore: row %d does not exist", id)
		}
	}
	return nil
}

func selectColumns(ctx context.Context, q dbtx, columns []Column, rowIDs []int64) (*Frame, error) {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	sel := "rowid"
	if len(names) > 0 {
		sel += ", " + quoteAll(names)
	}
	base := fmt.Sprintf("SELECT %s FROM %s", sel, tableName)

	if rowIDs == nil {
		f := newFrame(columns, 0)
		return f, scanInto(ctx, q, f, base+" ORDER BY rowid")
	}

	ids := sortedUnique(rowIDs)
	f := newFrame(columns, len(ids))
	for start := 0; start < len(ids); start += maxInList {
		end := min(start+maxInList, len(ids))
		chunk := ids[start:end]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := fmt.Sprintf("%s WHERE rowid IN (%s) ORDER BY rowid", base, placeholders(len(chunk)))
		if err := scanInto(ctx, q, f, query, args...); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func scanInto(ctx context.Context, q dbtx, f *Frame, query string, args ...any) error {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	var id int64
	vals := make([]any, len(f.Vectors))
	dest := make([]any, len(f.Vectors)+1)
	dest[0] = &id
	for i := range vals {
		dest[i+1] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return err
		}
		f.RowIDs = append(f.RowIDs, id)
		for i := range f.Vectors {
			f.Vectors[i].appendValue(vals[i])
		}
	}
	return rows.Err()
}

func maxInt(ctx context.Context, q dbtx, column string) (int64, error) {
	var v sql.NullInt64
	err := q.QueryRowContext(ctx, fmt.Sprintf("SELECT MAX(%s) FROM %s", quote(column), tableName)).Scan(&v)
	if err != nil {
		return 0, err
	}
	return v.Int64, nil
}

func count(ctx context.Context, q dbtx) (int64, error) {
	var n int64
	err := q.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", tableName)).Scan(&n)
	return n, err
}

func lookupTypes(types map[string]Type, columns []string) ([]Type, error) {
	out := make([]Type, len(columns))
	for i, c := range columns {
		t, ok := types[c]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, c)
		}
		out[i] = t
	}
	return out, nil
}

func normalizeRow(types []Type, columns []string, row []any) ([]any, error) {
	if len(row) != len(types) {
		return nil, fmt.Errorf("%w: %d values for %d columns", ErrValueCount, len(row), len(types))
	}
	args := make([]any, len(row))
	for i, v := range row {
		n, err := normalize(types[i], v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", columns[i], err)
		}
		args[i] = n
	}
	return args, nil
}

func sqlType(t Type) (string, error) {
	switch t {
	case Real:
		return "REAL", nil
	case Boolean:
		return "BOOLEAN", nil
	case Integer:
		return "INTEGER", nil
	}
	return "", fmt.Errorf("rowstore: unsupported column type %s", t)
}

func parseSQLType(s string) (Type, error) {
	switch strings.ToUpper(s) {
	case "REAL":
		return Real, nil
	case "BOOLEAN":
		return Boolean, nil
	case "INTEGER":
		return Integer, nil
	}
	return 0, fmt.Errorf("rowstore: unsupported column type %q", s)
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteAll(names []string) string {
	q := make([]string, len(names))
	for i, n := range names {
		q[i] = quote(n)
	}
	return strings.Join(q, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
