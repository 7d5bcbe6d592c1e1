package bid

import (
	"database/sql"
	"strconv"
	"strings"
)

// dialect distinguishes the two database/sql drivers the relational BID
// form can run against: the default embedded SQLite store, and an
// optional Postgres backend for hosts that already run a Postgres fleet
// (spec.md's relational schema is SQL-standard enough to serve both, the
// way claircore's own schema work is Postgres-specific but this core's
// is not tied to one engine).
type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// execer is the subset of *sql.DB / *sql.Tx every relational query in this
// package needs. Query text is always written with "?" placeholders;
// querier rewrites them to "$1", "$2", ... for Postgres at the call site,
// so insertSBITx and friends stay dialect-agnostic.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

type querier struct {
	execer
	d dialect
}

func (q querier) Exec(query string, args ...any) (sql.Result, error) {
	return q.execer.Exec(rebind(q.d, query), args...)
}

func (q querier) Query(query string, args ...any) (*sql.Rows, error) {
	return q.execer.Query(rebind(q.d, query), args...)
}

func (q querier) QueryRow(query string, args ...any) *sql.Row {
	return q.execer.QueryRow(rebind(q.d, query), args...)
}

// rebind rewrites SQLite-style "?" positional placeholders into Postgres's
// "$1"-style numbered placeholders. A no-op for SQLite.
func rebind(d dialect, query string) string {
	if d == dialectSQLite {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
