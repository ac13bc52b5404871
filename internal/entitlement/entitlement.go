package entitlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avstrong/rentals/internal/catalog"
)

type Tier string

const (
	TierNone     Tier = "none"
	TierStandard Tier = "standard"
	TierPro      Tier = "pro"
)

func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierNone, "":
		return TierNone, nil
	case TierStandard:
		return TierStandard, nil
	case TierPro:
		return TierPro, nil
	default:
		return "", fmt.Errorf("tier %q: %w", s, ErrUnknownTier)
	}
}

// Each tier sees a superset of the tier below it.
var visibleCategories = map[Tier]map[catalog.Category]struct{}{
	TierNone: {
		catalog.CategoryHosted:  {},
		catalog.CategorySpecial: {},
	},
	TierStandard: {
		catalog.CategoryStandard: {},
		catalog.CategoryHosted:   {},
		catalog.CategorySpecial:  {},
	},
	TierPro: {
		catalog.CategoryStandard: {},
		catalog.CategoryHosted:   {},
		catalog.CategorySpecial:  {},
	},
}

func (t Tier) Sees(c catalog.Category) bool {
	if c == catalog.CategoryAddon {
		return false
	}

	categories, ok := visibleCategories[t]
	if !ok {
		categories = visibleCategories[TierNone]
	}

	_, ok = categories[c]

	return ok
}

// Visible filters enabled descriptors down to what the tier may browse.
// Addons never appear here; they are sold inside the booking flow only.
func Visible(descriptors []catalog.Descriptor, tier Tier) []catalog.Descriptor {
	out := make([]catalog.Descriptor, 0, len(descriptors))

	for _, d := range descriptors {
		if d.Enabled && tier.Sees(d.Category) {
			out = append(out, d)
		}
	}

	return out
}

// Addons returns the enabled addon descriptors regardless of tier.
func Addons(descriptors []catalog.Descriptor) []catalog.Descriptor {
	out := make([]catalog.Descriptor, 0)

	for _, d := range descriptors {
		if d.Enabled && d.Category == catalog.CategoryAddon {
			out = append(out, d)
		}
	}

	return out
}

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionRefunded  TransactionStatus = "refunded"
)

// Transaction is a subscription purchase recorded for a customer.
type Transaction struct {
	ID          string            `json:"id" yaml:"id"`
	CustomerID  string            `json:"customer_id" yaml:"customer_id"`
	Status      TransactionStatus `json:"status" yaml:"status"`
	Entitlement string            `json:"entitlement" yaml:"entitlement"`
	ExpiresAt   time.Time         `json:"expires_at" yaml:"expires_at"`
}

var proLabels = map[string]struct{}{
	"pro":     {},
	"premium": {},
	"host":    {},
}

// TierFromTransactions picks the highest tier granted by a completed, unexpired transaction.
func TierFromTransactions(txs []Transaction, now time.Time) Tier {
	tier := TierNone

	for _, tx := range txs {
		if tx.Status != TransactionCompleted || !tx.ExpiresAt.After(now) {
			continue
		}

		if _, ok := proLabels[strings.ToLower(strings.TrimSpace(tx.Entitlement))]; ok {
			return TierPro
		}

		tier = TierStandard
	}

	return tier
}

type storage interface {
	ListSubscriptionTransactions(ctx context.Context, customerID string) ([]Transaction, error)
}

type Lookup struct {
	storage storage
	now     func() time.Time
}

func NewLookup(storage storage, now func() time.Time) *Lookup {
	if now == nil {
		now = time.Now
	}

	return &Lookup{storage: storage, now: now}
}

func (l *Lookup) Tier(ctx context.Context, customerID string) (Tier, error) {
	if strings.TrimSpace(customerID) == "" {
		return TierNone, nil
	}

	txs, err := l.storage.ListSubscriptionTransactions(ctx, customerID)
	if err != nil {
		return TierNone, fmt.Errorf("list subscription transactions of customer %s: %w", customerID, err)
	}

	return TierFromTransactions(txs, l.now().UTC()), nil
}
