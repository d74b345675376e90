package history

import (
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/LeonardoBeccarini/plants/internal/clock"
)

// Manager hands out one History per pump, backed by a single sqlite
// connection when a database path is configured and by memory
// otherwise. The connection is owned by the goroutine that called
// NewManager.
type Manager struct {
	clk    clock.Clock
	logger *slog.Logger
	conn   *sqlite.Conn
	path   string
}

func NewManager(path string, clk clock.Clock, logger *slog.Logger) (*Manager, error) {
	m := &Manager{clk: clk, logger: logger, path: path}
	if path == "" {
		logger.Info("usage history kept in memory only")
		return m, nil
	}

	conn, err := sqlite.OpenConn(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrPersistence, path, err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	} {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrPersistence, pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: schema: %v", ErrPersistence, err)
	}
	m.conn = conn
	logger.Info("usage history opened", "path", path)
	return m, nil
}

// HistoryFor returns the history stored under name, loading the events
// already persisted for it.
func (m *Manager) HistoryFor(name string) (History, error) {
	mem := NewInMemory(m.clk)
	if m.conn == nil {
		return mem, nil
	}
	h, err := newSqlite(m.conn, name, mem)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Close releases the database connection, if any.
func (m *Manager) Close() error {
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	if err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrPersistence, m.path, err)
	}
	return nil
}
