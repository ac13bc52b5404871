package postgres

import "errors"

var ErrTransactionNotFoundInCtx = errors.New("no transaction found in ctx")
