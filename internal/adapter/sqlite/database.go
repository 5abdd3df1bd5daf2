package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"limbo/internal/domain"
)

// PluginDatabases gives every plugin its own SQLite file under dir, opened on
// first use.
type PluginDatabases struct {
	dir    string
	logger *slog.Logger

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// NewPluginDatabases creates a provider storing <dir>/<plugin id>.db files.
func NewPluginDatabases(dir string, logger *slog.Logger) *PluginDatabases {
	return &PluginDatabases{dir: dir, logger: logger, dbs: make(map[string]*sql.DB)}
}

// ForPlugin returns the database of one plugin.
func (p *PluginDatabases) ForPlugin(pluginID string) domain.Database {
	return &pluginDatabase{parent: p, pluginID: pluginID}
}

func (p *PluginDatabases) open(pluginID string) (*sql.DB, error) {
	if pluginID == "" || pluginID != filepath.Base(pluginID) || strings.HasPrefix(pluginID, ".") {
		return nil, domain.NewSubSystemError("database", "Database.Query", domain.ErrInvalidInput,
			fmt.Sprintf("plugin id %q cannot name a database file", pluginID))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if db, ok := p.dbs[pluginID]; ok {
		return db, nil
	}
	path := filepath.Join(p.dir, pluginID+".db")
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	p.dbs[pluginID] = db
	p.logger.Debug("plugin database opened", "plugin", pluginID, "path", path)
	return db, nil
}

// Close closes every opened plugin database.
func (p *PluginDatabases) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for id, db := range p.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	clear(p.dbs)
	return errors.Join(errs...)
}

type pluginDatabase struct {
	parent   *PluginDatabases
	pluginID string
}

// Query runs a statement. Statements that return rows fill Rows; the others
// fill LastInsertID and RowsAffected.
func (d *pluginDatabase) Query(ctx context.Context, query string, params ...any) (*domain.QueryResult, error) {
	db, err := d.parent.open(d.pluginID)
	if err != nil {
		return nil, err
	}

	if returnsRows(query) {
		rows, err := db.QueryContext(ctx, query, params...)
		if err != nil {
			return nil, domain.WrapOp("Database.Query", err)
		}
		defer rows.Close()
		out, err := scanRows(rows)
		if err != nil {
			return nil, domain.WrapOp("Database.Query", err)
		}
		return &domain.QueryResult{Rows: out}, nil
	}

	res, err := db.ExecContext(ctx, query, params...)
	if err != nil {
		return nil, domain.WrapOp("Database.Query", err)
	}
	result := &domain.QueryResult{Rows: []map[string]any{}}
	if id, err := res.LastInsertId(); err == nil {
		result.LastInsertID = &id
	}
	if n, err := res.RowsAffected(); err == nil {
		result.RowsAffected = &n
	}
	return result, nil
}

// scanRows reads every row into a column-name map. Byte slices become
// strings so that rows marshal as readable JSON.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

var (
	rowKeywords     = []string{"SELECT", "WITH", "PRAGMA", "VALUES", "EXPLAIN"}
	returningClause = regexp.MustCompile(`\bRETURNING\b`)
)

// returnsRows reports whether a statement produces a result set.
func returnsRows(query string) bool {
	q := strings.ToUpper(stripLeadingComments(query))
	for _, kw := range rowKeywords {
		if strings.HasPrefix(q, kw) {
			return true
		}
	}
	return returningClause.MatchString(q)
}

func stripLeadingComments(q string) string {
	for {
		q = strings.TrimSpace(q)
		switch {
		case strings.HasPrefix(q, "--"):
			nl := strings.IndexByte(q, '\n')
			if nl < 0 {
				return ""
			}
			q = q[nl+1:]
		case strings.HasPrefix(q, "/*"):
			end := strings.Index(q, "*/")
			if end < 0 {
				return ""
			}
			q = q[end+2:]
		default:
			return q
		}
	}
}
