package memory

import "errors"

var (
	// ErrTransactionIDNotFoundInCtx is returned by writes made outside BeginTransaction.
	ErrTransactionIDNotFoundInCtx = errors.New("write outside of a transaction")
	// ErrTransactionNotFound means the transaction was already committed or rolled back.
	ErrTransactionNotFound = errors.New("transaction is closed or unknown")
)
