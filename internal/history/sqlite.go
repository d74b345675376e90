package history

import (
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `
CREATE TABLE IF NOT EXISTS history (
    name  TEXT    NOT NULL,
    ts    INTEGER NOT NULL,
    value INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS history_name_ts ON history (name, ts);
`

// Sqlite is a History that writes every mutation to a sqlite table
// before applying it to the in-memory copy, so a crash in between never
// loses a recorded event.
//
// Sqlite is not safe for concurrent use and neither is the connection
// it shares with the other histories of the same Manager. Callers must
// use it from the goroutine that created the Manager.
type Sqlite struct {
	conn *sqlite.Conn
	name string
	mem  *InMemory
}

func newSqlite(conn *sqlite.Conn, name string, mem *InMemory) (*Sqlite, error) {
	h := &Sqlite{conn: conn, name: name, mem: mem}
	err := sqlitex.Execute(conn, `SELECT ts, value FROM history WHERE name = ?`, &sqlitex.ExecOptions{
		Args: []any{name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			h.mem.record(stmt.ColumnInt64(0), stmt.ColumnInt(1))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrPersistence, name, err)
	}
	return h, nil
}

func (h *Sqlite) Add(seconds int) error {
	ts := h.mem.clk.Now().Unix()
	err := sqlitex.Execute(h.conn, `INSERT INTO history (name, ts, value) VALUES (?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{h.name, ts, seconds},
	})
	if err != nil {
		return fmt.Errorf("%w: insert %s: %v", ErrPersistence, h.name, err)
	}
	h.mem.record(ts, seconds)
	return nil
}

func (h *Sqlite) TotalUpTo(window time.Duration) int {
	return h.mem.TotalUpTo(window)
}

func (h *Sqlite) ForgetUpTo(window time.Duration) error {
	cutoff := h.mem.cutoff(window)
	err := sqlitex.Execute(h.conn, `DELETE FROM history WHERE name = ? AND ts < ?`, &sqlitex.ExecOptions{
		Args: []any{h.name, cutoff},
	})
	if err != nil {
		return fmt.Errorf("%w: evict %s: %v", ErrPersistence, h.name, err)
	}
	h.mem.forgetBefore(cutoff)
	return nil
}
