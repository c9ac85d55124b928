package reportmanager

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/jackc/pgx/v5"
)

// DefaultRowLimit caps the rows returned when a report is executed.
const DefaultRowLimit = 1000

// Result is the outcome of executing a report.
type Result struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated"`
}

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Executor runs report statements in read-only transactions that are
// always rolled back.
type Executor struct {
	db    TxBeginner
	limit int
}

func NewExecutor(db TxBeginner, limit int) *Executor {
	if limit <= 0 {
		limit = DefaultRowLimit
	}
	return &Executor{db: db, limit: limit}
}

// CleanSQL trims a statement and its trailing semicolons. Several
// statements in one report are rejected; semicolons inside literals,
// quoted identifiers and comments do not separate statements.
func CleanSQL(sql string) (string, error) {
	stmts := statements(sql)
	switch len(stmts) {
	case 0:
		return "", fmt.Errorf("sql is required")
	case 1:
		return stmts[0], nil
	}
	return "", fmt.Errorf("a report runs a single statement")
}

// statements splits sql at its top level semicolons and drops the pieces
// holding only whitespace and comments.
func statements(sql string) []string {
	var out []string
	start, code := 0, false
	cut := func(end int) {
		if code {
			out = append(out, strings.TrimSpace(sql[start:end]))
		}
		start, code = end+1, false
	}
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == ';':
			cut(i)
		case c == '\'' || c == '"':
			i = skipQuoted(sql, i, c)
			code = true
		case strings.HasPrefix(sql[i:], "--"):
			if j := strings.IndexByte(sql[i:], '\n'); j >= 0 {
				i += j
			} else {
				i = len(sql)
			}
		case strings.HasPrefix(sql[i:], "/*"):
			i = skipBlockComment(sql, i)
		case c == '$':
			if tag, ok := dollarTag(sql[i:]); ok {
				i = skipDollarQuoted(sql, i, tag)
			}
			code = true
		case !unicode.IsSpace(rune(c)):
			code = true
		}
	}
	if start < len(sql) {
		cut(len(sql))
	}
	return out
}

// skipQuoted returns the index of the quote closing the literal opened at i.
// A doubled quote is an escaped one.
func skipQuoted(sql string, i int, quote byte) int {
	for j := i + 1; j < len(sql); j++ {
		if sql[j] != quote {
			continue
		}
		if j+1 < len(sql) && sql[j+1] == quote {
			j++
			continue
		}
		return j
	}
	return len(sql) - 1
}

// skipBlockComment returns the index of the final '/' of the comment opened
// at i. Block comments nest.
func skipBlockComment(sql string, i int) int {
	depth := 0
	for j := i; j+1 < len(sql); j++ {
		switch sql[j : j+2] {
		case "/*":
			depth++
			j++
		case "*/":
			depth--
			j++
			if depth == 0 {
				return j
			}
		}
	}
	return len(sql) - 1
}

// dollarTag reports the $tag$ opening a dollar-quoted string at the start
// of s. Positional parameters like $1 are not tags.
func dollarTag(s string) (string, bool) {
	for j := 1; j < len(s); j++ {
		c := s[j]
		switch {
		case c == '$':
			return s[:j+1], true
		case c == '_' || unicode.IsLetter(rune(c)) || (j > 1 && c >= '0' && c <= '9'):
		default:
			return "", false
		}
	}
	return "", false
}

func skipDollarQuoted(sql string, i int, tag string) int {
	body := i + len(tag)
	if k := strings.Index(sql[body:], tag); k >= 0 {
		return body + k + len(tag) - 1
	}
	return len(sql) - 1
}

func (e *Executor) Run(ctx context.Context, sql string) (*Result, error) {
	if e == nil || e.db == nil {
		return nil, fmt.Errorf("db is required")
	}
	sql, err := CleanSQL(sql)
	if err != nil {
		return nil, err
	}

	tx, err := e.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := &Result{Rows: [][]any{}}
	for _, fd := range rows.FieldDescriptions() {
		res.Columns = append(res.Columns, fd.Name)
	}
	for rows.Next() {
		if len(res.Rows) == e.limit {
			res.Truncated = true
			break
		}
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}
