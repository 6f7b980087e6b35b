package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Spok95/tutorcenter/internal/ctxutil"
	"github.com/Spok95/tutorcenter/internal/store"
)

// Postgres implements store.Store on a *sql.DB.
type Postgres struct {
	db *sql.DB
}

var (
	_ store.Store      = (*Postgres)(nil)
	_ store.TokenStore = (*Postgres)(nil)
	_ store.Tx         = (*pgTx)(nil)
)

func NewStore(database *sql.DB) *Postgres { return &Postgres{db: database} }

func (p *Postgres) DB() *sql.DB { return p.db }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// InTx runs fn in a read-committed transaction. Double-booking checks lock
// the tutor row first and the exclusion constraint backs them up, so a
// stricter isolation level is not needed.
func (p *Postgres) InTx(ctx context.Context, fn func(store.Tx) error) error {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapErr("transaction", err)
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

type scanner interface {
	Scan(dest ...any) error
}

// collect scans every row with scan and closes rows.
func collect[T any](rows *sql.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer func() { _ = rows.Close() }()
	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// where accumulates AND-ed conditions with positional args.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *where) raw(cond string) { w.conds = append(w.conds, cond) }

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	s := " WHERE " + w.conds[0]
	for _, c := range w.conds[1:] {
		s += " AND " + c
	}
	return s
}

// next is the placeholder index for an argument appended after the conditions.
func (w *where) next(arg any) string {
	w.args = append(w.args, arg)
	return fmt.Sprintf("$%d", len(w.args))
}

// prefixCols qualifies a comma separated column list with a table alias.
func prefixCols(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, c := range parts {
		parts[i] = alias + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}
