package db

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"mcsh-server/models"
)

// where accumulates AND-ed conditions. Each "?" in a condition becomes the
// next positional placeholder.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	for _, a := range args {
		w.args = append(w.args, a)
		cond = strings.Replace(cond, "?", "$"+strconv.Itoa(len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return "TRUE"
	}
	return strings.Join(w.conds, " AND ")
}

func like(s string) string { return "%" + s + "%" }

// listSpec describes a table for keyset pagination. Sort columns must be
// NOT NULL so that row comparison against the cursor row is total.
type listSpec struct {
	table       string
	alias       string
	columns     string
	sorts       map[string]string // API field -> column
	defaultSort string
}

// listPage returns one page ordered by (sort column, id) and starting after
// the row with id opts.After.
func listPage[T any](ctx context.Context, q querier, spec listSpec, w *where, opts models.ListOptions, scan func(pgx.Row) (T, error)) (models.Page[T], error) {
	field := opts.SortField
	if field == "" {
		field = spec.defaultSort
	}
	col, ok := spec.sorts[field]
	if !ok {
		return models.Page[T]{}, fmt.Errorf("%w: %q", ErrInvalidSort, field)
	}
	dir, cmp := "ASC", ">"
	if opts.Descending {
		dir, cmp = "DESC", "<"
	}

	var page models.Page[T]
	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s %s WHERE %s", spec.table, spec.alias, w.sql())
	if err := q.QueryRow(ctx, countSQL, w.args...).Scan(&page.TotalCount); err != nil {
		return page, fmt.Errorf("count %s: %w", spec.table, err)
	}

	if opts.After != nil {
		page.HasPreviousPage = true
		w.add(fmt.Sprintf("(%s.%s, %s.id) %s (SELECT %s, id FROM %s WHERE id = ?)",
			spec.alias, col, spec.alias, cmp, col, spec.table), *opts.After)
	}
	limit := opts.Limit()
	args := append(w.args, limit+1)
	query := fmt.Sprintf("SELECT %s FROM %s %s WHERE %s ORDER BY %s.%s %s, %s.id %s LIMIT $%d",
		spec.columns, spec.table, spec.alias, w.sql(), spec.alias, col, dir, spec.alias, dir, len(args))

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return page, fmt.Errorf("list %s: %w", spec.table, err)
	}
	defer rows.Close()
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return page, fmt.Errorf("scan %s: %w", spec.table, err)
		}
		page.Items = append(page.Items, item)
	}
	if err := rows.Err(); err != nil {
		return page, fmt.Errorf("iterate %s: %w", spec.table, err)
	}
	if len(page.Items) > limit {
		page.Items = page.Items[:limit]
		page.HasNextPage = true
	}
	return page, nil
}

// collect runs query and scans every row.
func collect[T any](ctx context.Context, q querier, query string, scan func(pgx.Row) (T, error), args ...any) ([]T, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func prefix(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
