// Package database opens engine connections for the CLI and the REPL and
// introspects their schema for completion.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/bawdo/querytree/internal/config"
)

var driverName = map[string]string{
	config.EnginePostgres: "pgx",
	config.EngineMySQL:    "mysql",
	config.EngineSQLite:   "sqlite",
}

// DriverName returns the database/sql driver registered for engine.
func DriverName(engine string) (string, bool) {
	d, ok := driverName[engine]
	return d, ok
}

// Conn is an open, pinged connection.
type Conn struct {
	*sql.DB
	Engine string
	DSN    string

	mu      sync.Mutex
	tables  []string
	columns map[string][]string
}

// Open connects to dsn with the driver of engine and pings it.
func Open(ctx context.Context, engine, dsn string) (*Conn, error) {
	driver, ok := driverName[engine]
	if !ok {
		return nil, fmt.Errorf("no driver for engine %q", engine)
	}
	if dsn == "" {
		return nil, fmt.Errorf("%s: dsn is required", engine)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if engine == config.EngineSQLite {
		// An in-memory database lives on one connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Conn{DB: db, Engine: engine, DSN: dsn, columns: make(map[string][]string)}, nil
}

// Tables lists the tables of the current schema. The result is cached.
func (c *Conn) Tables(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tables != nil {
		return c.tables, nil
	}
	var query string
	switch c.Engine {
	case config.EnginePostgres:
		query = "SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name"
	case config.EngineMySQL:
		query = "SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() ORDER BY table_name"
	case config.EngineSQLite:
		query = "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
	default:
		return nil, fmt.Errorf("unsupported engine: %s", c.Engine)
	}
	tables, err := c.strings(ctx, query)
	if err != nil {
		return nil, err
	}
	if tables == nil {
		tables = []string{}
	}
	c.tables = tables
	return tables, nil
}

// Columns lists the columns of table in ordinal order. The result is
// cached per table.
func (c *Conn) Columns(ctx context.Context, table string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cols, ok := c.columns[table]; ok {
		return cols, nil
	}
	var query string
	switch c.Engine {
	case config.EnginePostgres:
		query = "SELECT column_name FROM information_schema.columns WHERE table_schema = 'public' AND table_name = $1 ORDER BY ordinal_position"
	case config.EngineMySQL:
		query = "SELECT column_name FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position"
	case config.EngineSQLite:
		query = "SELECT name FROM pragma_table_info(?)"
	default:
		return nil, fmt.Errorf("unsupported engine: %s", c.Engine)
	}
	cols, err := c.strings(ctx, query, table)
	if err != nil {
		return nil, err
	}
	c.columns[table] = cols
	return cols, nil
}

// Forget drops the cached schema.
func (c *Conn) Forget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables = nil
	clear(c.columns)
}

func (c *Conn) strings(ctx context.Context, query string, params ...any) ([]string, error) {
	rows, err := c.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LogValue hides the password of the DSN.
func (c *Conn) LogValue() slog.Value {
	return slog.GroupValue(slog.String("engine", c.Engine), slog.String("dsn", SanitizeDSN(c.DSN)))
}

// SanitizeDSN masks the password of a URL or MySQL style DSN.
func SanitizeDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err == nil && u.Scheme != "" && u.User != nil {
		if _, ok := u.User.Password(); ok {
			// Built by hand so the mask is not percent-encoded.
			masked := u.Scheme + "://" + u.User.Username() + ":****@" + u.Host + u.Path
			if u.RawQuery != "" {
				masked += "?" + u.RawQuery
			}
			return masked
		}
		return dsn
	}
	if at := strings.LastIndex(dsn, "@"); at > 0 {
		userPass := dsn[:at]
		if colon := strings.Index(userPass, ":"); colon >= 0 {
			return userPass[:colon+1] + "****" + dsn[at:]
		}
	}
	return dsn
}
