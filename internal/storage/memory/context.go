package memory

import "context"

// trxKey carries the id of the staged transaction a write belongs to.
type trxKey struct{}

func contextWithTrx(ctx context.Context, trxID string) context.Context {
	return context.WithValue(ctx, trxKey{}, trxID)
}

func trxFromContext(ctx context.Context) (string, bool) {
	trxID, ok := ctx.Value(trxKey{}).(string)

	return trxID, ok && trxID != ""
}
