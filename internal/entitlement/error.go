package entitlement

import "errors"

var ErrUnknownTier = errors.New("unknown entitlement tier")
