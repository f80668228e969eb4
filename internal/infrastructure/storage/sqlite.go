// Package storage persists the feed hierarchy.
package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/tesso57/feedtree/internal/domain/reading"
	"github.com/tesso57/feedtree/internal/domain/subscription"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// articleBatch bounds the rows per INSERT to stay below SQLite's variable limit.
const articleBatch = 500

const rootParent int64 = -1

// Manager stores the hierarchy in a SQLite database.
type Manager struct {
	mu   sync.Mutex
	path string
	db   *sql.DB
}

// NewManager creates a Manager for the database at path. The database is
// created and migrated on first use.
func NewManager(path string) *Manager {
	return new(Manager{
		path: path,
	})
}

// Close releases the database handle.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	return err
}

func (m *Manager) conn() (*sql.DB, error) {
	if m.db != nil {
		return m.db, nil
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0750); err != nil {
		return nil, err
	}
	if err := migrateUp(m.path); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", m.path, err)
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", m.path))
	if err != nil {
		return nil, err
	}
	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(time.Hour)
	m.db = db
	return db, nil
}

func migrateUp(path string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	mg, err := migrate.NewWithSourceInstance("iofs", src, "sqlite://"+path)
	if err != nil {
		return err
	}
	defer func() { _, _ = mg.Close() }()
	if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

type nodeRow struct {
	id       int64
	position int
	node     subscription.Node
}

// Load reads the hierarchy. A new database yields an empty root folder.
func (m *Manager) Load() (subscription.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	root := subscription.Node{Kind: subscription.FolderKind}
	db, err := m.conn()
	if err != nil {
		return root, err
	}

	articles, err := loadArticles(db)
	if err != nil {
		return root, err
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "parent_id", "position", "name", "kind", "url", "title", "icon").
		From("nodes").
		OrderBy("parent_id", "position")
	query, args := sb.Build()
	rows, err := db.Query(query, args...)
	if err != nil {
		return root, err
	}
	defer func() { _ = rows.Close() }()

	children := make(map[int64][]nodeRow)
	for rows.Next() {
		var (
			row    nodeRow
			parent sql.NullInt64
			url    sql.NullString
		)
		if err := rows.Scan(&row.id, &parent, &row.position, &row.node.Name, &row.node.Kind, &url, &row.node.Title, &row.node.Icon); err != nil {
			return root, err
		}
		row.node.URL = url.String
		if row.node.Kind == subscription.StreamKind {
			row.node.Articles = articles[row.id]
		}
		key := rootParent
		if parent.Valid {
			key = parent.Int64
		}
		children[key] = append(children[key], row)
	}
	if err := rows.Err(); err != nil {
		return root, err
	}

	root.Children = assemble(children, rootParent)
	return root, nil
}

func assemble(children map[int64][]nodeRow, parent int64) []subscription.Node {
	rows := children[parent]
	if len(rows) == 0 {
		return nil
	}
	out := make([]subscription.Node, 0, len(rows))
	for _, row := range rows {
		n := row.node
		if n.Kind == subscription.FolderKind {
			n.Children = assemble(children, row.id)
		}
		out = append(out, n)
	}
	return out
}

func loadArticles(db *sql.DB) (map[int64][]reading.Article, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("node_id", "title", "link", "author", "published", "date", "description", "read").
		From("articles").
		OrderBy("node_id", "position")
	query, args := sb.Build()
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[int64][]reading.Article)
	for rows.Next() {
		var (
			nodeID int64
			a      reading.Article
			date   sql.NullString
			read   int
		)
		if err := rows.Scan(&nodeID, &a.Title, &a.Link, &a.Author, &a.Published, &date, &a.Description, &read); err != nil {
			return nil, err
		}
		if date.Valid {
			parsed, err := time.Parse(time.RFC3339Nano, date.String)
			if err != nil {
				return nil, fmt.Errorf("article %q: parse date: %w", a.Title, err)
			}
			a.Date = parsed
		}
		a.Read = read != 0
		out[nodeID] = append(out[nodeID], a)
	}
	return out, rows.Err()
}

// Save replaces the stored hierarchy with root in a single transaction.
func (m *Manager) Save(root subscription.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	db, err := m.conn()
	if err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"articles", "nodes"} {
		query, args := sqlbuilder.SQLite.NewDeleteBuilder().DeleteFrom(table).Build()
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	w := &treeWriter{tx: tx}
	if err := w.writeChildren(sql.NullInt64{}, root.Children); err != nil {
		return err
	}
	return tx.Commit()
}

type treeWriter struct {
	tx   *sql.Tx
	next int64
}

func (w *treeWriter) writeChildren(parent sql.NullInt64, children []subscription.Node) error {
	for pos, child := range children {
		w.next++
		id := w.next

		var url any
		if child.Kind == subscription.StreamKind {
			url = child.URL
		}
		ib := sqlbuilder.SQLite.NewInsertBuilder()
		ib.InsertInto("nodes").
			Cols("id", "parent_id", "position", "name", "kind", "url", "title", "icon").
			Values(id, parent, pos, child.Name, child.Kind, url, child.Title, child.Icon)
		query, args := ib.Build()
		if _, err := w.tx.Exec(query, args...); err != nil {
			return fmt.Errorf("insert node %q: %w", child.Name, err)
		}

		switch child.Kind {
		case subscription.StreamKind:
			if err := w.writeArticles(id, child.Articles); err != nil {
				return err
			}
		case subscription.FolderKind:
			if err := w.writeChildren(sql.NullInt64{Int64: id, Valid: true}, child.Children); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *treeWriter) writeArticles(nodeID int64, articles []reading.Article) error {
	for start := 0; start < len(articles); start += articleBatch {
		end := min(start+articleBatch, len(articles))
		ib := sqlbuilder.SQLite.NewInsertBuilder()
		ib.InsertInto("articles").
			Cols("node_id", "position", "title", "link", "author", "published", "date", "description", "read")
		for i, a := range articles[start:end] {
			var date any
			if !a.Date.IsZero() {
				date = a.Date.Format(time.RFC3339Nano)
			}
			read := 0
			if a.Read {
				read = 1
			}
			ib.Values(nodeID, start+i, a.Title, a.Link, a.Author, a.Published, date, a.Description, read)
		}
		query, args := ib.Build()
		if _, err := w.tx.Exec(query, args...); err != nil {
			return fmt.Errorf("insert articles: %w", err)
		}
	}
	return nil
}
