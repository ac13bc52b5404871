package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type contextKey string

const transactionKey contextKey = "postgresTransaction"

func withTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, transactionKey, tx)
}

func txFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(transactionKey).(pgx.Tx)

	return tx, ok
}
