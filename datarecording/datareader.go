package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
)

// QueryParams selects and orders the rows of a table.
type QueryParams struct {
	// Where is a condition without the WHERE keyword, e.g. "Pos = ?".
	Where string

	// Args fill the placeholders of Where.
	Args []any

	// OrderBy is an ordering without the ORDER BY keywords, e.g. "Seq DESC".
	OrderBy string

	// Limit caps the number of rows returned. Zero returns every row.
	Limit int

	// Offset skips rows. It only applies together with Limit.
	Offset int
}

// DataReader reads back the tables that a DataRecorder wrote.
type DataReader interface {
	// MapTable tells the reader which struct the rows of a table decode
	// into. A table must be mapped before it is queried.
	MapTable(tableName string, sampleEntry any)

	// ListTables returns the names of the tables in the database.
	ListTables(ctx context.Context) ([]string, error)

	// Query returns pointers to the decoded rows that match params,
	// together with the number of matching rows ignoring Limit and Offset.
	Query(ctx context.Context, tableName string, params QueryParams) (
		results []any,
		totalCount int,
		err error,
	)

	// CountBy groups the rows that match params by the value of a column
	// and counts each group. The column must be a field of the mapped
	// struct.
	CountBy(
		ctx context.Context,
		tableName, column string,
		params QueryParams,
	) (map[string]int, error)

	// Close closes the database.
	Close() error
}

type sqliteReader struct {
	*sql.DB

	types map[string]reflect.Type
}

// NewReader opens a database file written by a recorder.
func NewReader(dbFilename string) (DataReader, error) {
	db, err := sql.Open("sqlite3", dbFilename)
	if err != nil {
		return nil, err
	}

	return NewReaderWithDB(db), nil
}

// NewReaderWithDB creates a DataReader on an open database.
func NewReaderWithDB(db *sql.DB) DataReader {
	return &sqliteReader{
		DB:    db,
		types: make(map[string]reflect.Type),
	}
}

func (r *sqliteReader) MapTable(tableName string, sampleEntry any) {
	r.types[tableName] = reflect.TypeOf(sampleEntry)
}

func (r *sqliteReader) ListTables(ctx context.Context) ([]string, error) {
	rows, err := r.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}

		tables = append(tables, name)
	}

	return tables, rows.Err()
}

func (r *sqliteReader) mappedType(tableName string) (reflect.Type, error) {
	t, ok := r.types[tableName]
	if !ok {
		return nil, fmt.Errorf("table %s is not mapped", tableName)
	}

	return t, nil
}

func whereClause(params QueryParams) string {
	if params.Where == "" {
		return ""
	}

	return " WHERE " + params.Where
}

func (r *sqliteReader) Query(
	ctx context.Context,
	tableName string,
	params QueryParams,
) ([]any, int, error) {
	t, err := r.mappedType(tableName)
	if err != nil {
		return nil, 0, err
	}

	var total int
	err = r.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+tableName+whereClause(params),
		params.Args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	var q strings.Builder
	q.WriteString("SELECT * FROM " + tableName + whereClause(params))

	if params.OrderBy != "" {
		q.WriteString(" ORDER BY " + params.OrderBy)
	}

	if params.Limit > 0 {
		fmt.Fprintf(&q, " LIMIT %d OFFSET %d", params.Limit, params.Offset)
	}

	rows, err := r.QueryContext(ctx, q.String(), params.Args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	results, err := decodeRows(rows, t)
	if err != nil {
		return nil, 0, err
	}

	return results, total, nil
}

func (r *sqliteReader) CountBy(
	ctx context.Context,
	tableName, column string,
	params QueryParams,
) (map[string]int, error) {
	t, err := r.mappedType(tableName)
	if err != nil {
		return nil, err
	}

	if _, ok := t.FieldByName(column); !ok {
		return nil, fmt.Errorf("table %s has no column %s", tableName, column)
	}

	rows, err := r.QueryContext(ctx,
		fmt.Sprintf("SELECT %s, COUNT(*) FROM %s%s GROUP BY %s",
			column, tableName, whereClause(params), column),
		params.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			key   any
			count int
		)

		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}

		counts[fmt.Sprint(key)] = count
	}

	return counts, rows.Err()
}

// decodeRows fills one new struct of type t per row, matching columns to
// fields by name. Columns without a field are dropped.
func decodeRows(rows *sql.Rows, t reflect.Type) ([]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []any
	for rows.Next() {
		entry := reflect.New(t)
		targets := make([]any, len(columns))

		for i, c := range columns {
			if f := entry.Elem().FieldByName(c); f.IsValid() {
				targets[i] = f.Addr().Interface()
			} else {
				var ignored any
				targets[i] = &ignored
			}
		}

		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}

		results = append(results, entry.Interface())
	}

	return results, rows.Err()
}

func (r *sqliteReader) Close() error {
	return r.DB.Close()
}
