package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CopySlice streams items into table with the COPY protocol, converting each
// item to a row in column order. A server count that differs from
// len(items) is an error.
func CopySlice[T any](ctx context.Context, pool Pool, table pgx.Identifier, columns []string, items []T, row func(T) []any) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	name := table.Sanitize()

	src := pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
		return row(items[i]), nil
	})
	n, err := pool.CopyFrom(ctx, table, columns, src)
	if err != nil {
		return 0, eris.Wrapf(err, "db: copy into %s", name)
	}
	if n != int64(len(items)) {
		return n, eris.Errorf("db: copy into %s wrote %d of %d rows", name, n, len(items))
	}

	zap.L().Debug("db: copied rows", zap.String("table", name), zap.Int64("rows", n))
	return n, nil
}

// CopyRows is CopySlice for rows already laid out in column order.
func CopyRows(ctx context.Context, pool Pool, table pgx.Identifier, columns []string, rows [][]any) (int64, error) {
	return CopySlice(ctx, pool, table, columns, rows, func(r []any) []any { return r })
}
