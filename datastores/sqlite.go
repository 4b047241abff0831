package datastores

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection  TEXT    NOT NULL,
	id          TEXT    NOT NULL,
	data        TEXT    NOT NULL,
	create_time INTEGER NOT NULL,
	update_time INTEGER NOT NULL,
	PRIMARY KEY (collection, id)
);
`

// SQLite is a [Database] storing documents as JSON in a SQLite table.
// Watches are served from the process that performs the writes.
type SQLite struct {
	db *sql.DB

	mu          sync.Mutex
	closed      bool
	collections map[string]*sqliteCollection
}

var _ Database = (*SQLite)(nil)

// OpenSQLite opens or creates the database at dsn, e.g. "contacts.db" or
// "file::memory:".
func OpenSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db, collections: make(map[string]*sqliteCollection)}, nil
}

func (s *SQLite) Collection(name string) Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		c = &sqliteCollection{db: s.db, name: name, watch: newBroadcaster()}
		if s.closed {
			c.watch.close()
		}
		s.collections[name] = c
	}
	return c
}

// Close ends every watch. Later operations fail with [ErrClosed].
func (s *SQLite) Close() error {
	s.mu.Lock()
	s.closed = true
	for _, c := range s.collections {
		c.watch.close()
	}
	s.mu.Unlock()
	return s.db.Close()
}

// sqliteCollection implements [Collection].
type sqliteCollection struct {
	db    *sql.DB
	name  string
	watch *broadcaster
}

func wrapClosed(err error) error {
	if err != nil && strings.Contains(err.Error(), "sql: database is closed") {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return err
}

func (c *sqliteCollection) Add(ctx context.Context, f Fields) (DocumentID, error) {
	f, err := normalizeFields(f)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(f)
	if err != nil {
		return "", err
	}

	now := time.Now().UnixNano()
	for {
		id := newDocumentID()
		res, err := c.db.ExecContext(ctx,
			`INSERT INTO documents (collection, id, data, create_time, update_time)
			 VALUES (?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
			c.name, string(id), string(data), now, now)
		if err != nil {
			return "", wrapClosed(err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			c.watch.notify()
			return id, nil
		}
	}
}

func (c *sqliteCollection) Query(ctx context.Context, q Query) ([]*Document, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}

	var b strings.Builder
	args := []any{c.name}
	b.WriteString(`SELECT id, data, create_time, update_time FROM documents WHERE collection = ?`)
	for _, f := range q.Where {
		path := "$." + f.Field
		v, _ := normalize(f.Value)
		switch v := v.(type) {
		case nil:
			b.WriteString(` AND json_type(data, ?) = 'null'`)
			args = append(args, path)
		case bool:
			// json_extract reads booleans as 1 and 0, json_type tells them from numbers
			b.WriteString(` AND json_type(data, ?) = ?`)
			args = append(args, path, strconv.FormatBool(v))
		case string:
			b.WriteString(` AND json_type(data, ?) = 'text' AND json_extract(data, ?) = ?`)
			args = append(args, path, path, v)
		default:
			b.WriteString(` AND json_type(data, ?) IN ('integer', 'real') AND json_extract(data, ?) = ?`)
			args = append(args, path, path, v)
		}
	}
	for _, o := range q.OrderBy {
		b.WriteString(` AND json_type(data, ?) IS NOT NULL`)
		args = append(args, "$."+o.Field)
	}
	b.WriteString(` ORDER BY `)
	for _, o := range q.OrderBy {
		b.WriteString(`json_extract(data, ?)`)
		if o.Desc {
			b.WriteString(` DESC`)
		}
		b.WriteString(`, `)
		args = append(args, "$."+o.Field)
	}
	b.WriteString(`id`)
	if q.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}

	rows, err := c.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, wrapClosed(err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var (
			id, data         string
			created, updated int64
		)
		if err := rows.Scan(&id, &data, &created, &updated); err != nil {
			return nil, err
		}
		fields, err := decodeFields(data)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", id, err)
		}
		docs = append(docs, &Document{
			ID:         DocumentID(id),
			Fields:     fields,
			CreateTime: time.Unix(0, created),
			UpdateTime: time.Unix(0, updated),
		})
	}
	return docs, wrapClosed(rows.Err())
}

func (c *sqliteCollection) Set(ctx context.Context, id DocumentID, f Fields) error {
	f, err := normalizeFields(f)
	if err != nil {
		return err
	}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	now := time.Now().UnixNano()
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, create_time, update_time)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, update_time = excluded.update_time`,
		c.name, string(id), string(data), now, now)
	if err != nil {
		return wrapClosed(err)
	}
	c.watch.notify()
	return nil
}

func (c *sqliteCollection) Update(ctx context.Context, id DocumentID, f Fields) error {
	f, err := normalizeFields(f)
	if err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapClosed(err)
	}
	defer tx.Rollback() //nolint: errcheck // no-op after commit

	var data string
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, c.name, string(id)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrObjectNotFound
	}
	if err != nil {
		return err
	}
	fields, err := decodeFields(data)
	if err != nil {
		return fmt.Errorf("document %s: %w", id, err)
	}
	maps.Copy(fields, f)
	merged, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE documents SET data = ?, update_time = ? WHERE collection = ? AND id = ?`,
		string(merged), time.Now().UnixNano(), c.name, string(id))
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	c.watch.notify()
	return nil
}

func (c *sqliteCollection) Delete(ctx context.Context, id DocumentID) error {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, c.name, string(id))
	if err != nil {
		return wrapClosed(err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		c.watch.notify()
	}
	return nil
}

func (c *sqliteCollection) Watch(ctx context.Context, q Query) (<-chan Snapshot, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if c.watch.isClosed() {
		return nil, ErrClosed
	}
	return c.watch.watch(ctx, q, c.Query), nil
}

func decodeFields(data string) (Fields, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	fields := make(Fields, len(raw))
	for k, v := range raw {
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				v = i
			} else if v, err = n.Float64(); err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
		}
		fields[k] = v
	}
	return fields, nil
}
