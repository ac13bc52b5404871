package migration

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/avstrong/rentals/internal/catalog"
	"github.com/avstrong/rentals/internal/entitlement"
	"github.com/avstrong/rentals/internal/logger"
)

//go:embed seed.yaml
var defaultSeed []byte

type storage interface {
	BeginTransaction(ctx context.Context, level string) (context.Context, error)
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
	SaveProperty(ctx context.Context, property *catalog.Property) error
	SaveLocalPackage(ctx context.Context, p *catalog.LocalPackage) error
	SaveSubscriptionTransaction(ctx context.Context, tx *entitlement.Transaction) error
}

// Money is kept as a string in the seed file so it is never rounded through a float.
type seedPackage struct {
	catalog.LocalPackage `yaml:",inline"`
	BaseRate             string `yaml:"base_rate"`
}

type seedProduct struct {
	ID          string           `yaml:"id"`
	Title       string           `yaml:"title"`
	Description string           `yaml:"description"`
	Price       string           `yaml:"price"`
	Period      catalog.Period   `yaml:"period"`
	PeriodCount int              `yaml:"period_count"`
	Category    catalog.Category `yaml:"category"`
	Enabled     bool             `yaml:"enabled"`
	Features    []string         `yaml:"features"`
}

type Seed struct {
	Properties    []catalog.Property        `yaml:"properties"`
	Packages      []seedPackage             `yaml:"packages"`
	Products      []seedProduct             `yaml:"products"`
	Subscriptions []entitlement.Transaction `yaml:"subscriptions"`
}

// Default returns the seed bundled with the binary.
func Default() (*Seed, error) {
	return Parse(defaultSeed)
}

func Parse(data []byte) (*Seed, error) {
	var seed Seed

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	return &seed, nil
}

func (s *Seed) LocalPackages() ([]catalog.LocalPackage, error) {
	out := make([]catalog.LocalPackage, 0, len(s.Packages))

	for _, p := range s.Packages {
		rate, err := decimal.NewFromString(p.BaseRate)
		if err != nil {
			return nil, fmt.Errorf("base rate of package %s: %w", p.ID, err)
		}

		pkg := p.LocalPackage
		pkg.BaseRate = rate

		out = append(out, pkg)
	}

	return out, nil
}

// ExternalProducts is the seeded external catalog served by the static provider.
func (s *Seed) ExternalProducts() ([]catalog.ExternalProduct, error) {
	out := make([]catalog.ExternalProduct, 0, len(s.Products))

	for _, p := range s.Products {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, fmt.Errorf("price of product %s: %w", p.ID, err)
		}

		out = append(out, catalog.ExternalProduct{
			ID:          p.ID,
			Title:       p.Title,
			Description: p.Description,
			Price:       price,
			Period:      p.Period,
			PeriodCount: p.PeriodCount,
			Category:    p.Category,
			Enabled:     p.Enabled,
			Features:    p.Features,
		})
	}

	return out, nil
}

// Up writes the seed's properties, local packages and subscriptions in one transaction.
func Up(ctx context.Context, l *logger.Logger, storage storage, seed *Seed) (err error) {
	packages, err := seed.LocalPackages()
	if err != nil {
		return err
	}

	ctx, err = storage.BeginTransaction(ctx, "")
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := storage.RollbackTransaction(ctx); rbErr != nil {
				l.LogErrorf("Could not rollback migration transaction after panic %v: %v", p, rbErr)
			}

			l.LogInfo("Migration transaction has been rolled back after panic")

			panic(p)
		}

		if err != nil {
			if rbErr := storage.RollbackTransaction(ctx); rbErr != nil {
				l.LogErrorf("Could not rollback migration transaction after error %v: %v", err, rbErr)
			}

			l.LogInfo("Migration transaction has been rolled back after error")

			return
		}

		if err = storage.CommitTransaction(ctx); err != nil {
			l.LogErrorf("Could not commit migration transaction, err %v", err)

			err = fmt.Errorf("commit migration: %w", err)

			return
		}

		l.LogInfo("Migration transaction has been committed")
	}()

	for i := range seed.Properties {
		if err = storage.SaveProperty(ctx, &seed.Properties[i]); err != nil {
			return fmt.Errorf("save property %s: %w", seed.Properties[i].ID, err)
		}
	}

	for i := range packages {
		if err = storage.SaveLocalPackage(ctx, &packages[i]); err != nil {
			return fmt.Errorf("save local package %s: %w", packages[i].ID, err)
		}
	}

	for i := range seed.Subscriptions {
		if err = storage.SaveSubscriptionTransaction(ctx, &seed.Subscriptions[i]); err != nil {
			return fmt.Errorf("save subscription transaction %s: %w", seed.Subscriptions[i].ID, err)
		}
	}

	return nil
}
