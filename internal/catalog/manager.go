package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/avstrong/rentals/internal/logger"
)

const (
	externalCatalogKey  = "external"
	defaultFetchTimeout = 10 * time.Second

	fetchOK       = "ok"
	fetchFailed   = "failed"
	fetchCacheHit = "cache_hit"
)

var tracer = otel.Tracer("github.com/avstrong/rentals/internal/catalog")

type storage interface {
	ListLocalPackages(ctx context.Context, propertyID string) ([]LocalPackage, error)
	GetProperty(ctx context.Context, propertyID string) (*Property, error)
}

type productLister interface {
	ListProducts(ctx context.Context) ([]ExternalProduct, error)
}

type observer interface {
	ObserveCatalogFetch(source, result string)
}

type nopObserver struct{}

func (nopObserver) ObserveCatalogFetch(string, string) {}

type Config struct {
	L        *logger.Logger
	Storage  storage
	Products productLister
	Observer observer
	// CacheTTL bounds how long a fetched external catalog may be reused by non-pricing reads.
	CacheTTL time.Duration
	// FetchTimeout bounds a shared external catalog fetch. Defaults to 10s.
	FetchTimeout time.Duration
	Now          func() time.Time
}

// Snapshot is the override-resolved catalog of one property at one point in time.
type Snapshot struct {
	PropertyID          string
	Descriptors         []Descriptor
	ExternalUnavailable bool
}

// Resolve applies the identity resolution chain. When nothing matches while the external
// catalog could not be fetched, the miss is reported as ErrCatalogUnavailable since the
// package may be an unreachable external product.
func (s *Snapshot) Resolve(ref string) (Descriptor, error) {
	d, err := Resolve(s.Descriptors, ref)
	if err != nil && s.ExternalUnavailable {
		return Descriptor{}, fmt.Errorf("resolve %q without external catalog: %w", ref, ErrCatalogUnavailable)
	}

	return d, err
}

type Manager struct {
	l        *logger.Logger
	storage  storage
	products productLister
	observer observer
	cacheTTL time.Duration
	timeout  time.Duration
	now      func() time.Time

	group    singleflight.Group
	mu       sync.Mutex
	cached   []ExternalProduct
	cachedAt time.Time
}

func New(conf Config) *Manager {
	m := &Manager{
		l:        conf.L,
		storage:  conf.Storage,
		products: conf.Products,
		observer: conf.Observer,
		cacheTTL: conf.CacheTTL,
		timeout:  conf.FetchTimeout,
		now:      conf.Now,
	}

	if m.observer == nil {
		m.observer = nopObserver{}
	}

	if m.now == nil {
		m.now = time.Now
	}

	if m.timeout <= 0 {
		m.timeout = defaultFetchTimeout
	}

	if m.l == nil {
		m.l = logger.Nop()
	}

	return m
}

// Snapshot loads local packages, the property's overrides and the external catalog concurrently
// and resolves them into one descriptor list. A failing external catalog degrades to local
// packages only. With fresh set the external catalog cache is bypassed.
func (m *Manager) Snapshot(ctx context.Context, propertyID string, fresh bool) (*Snapshot, error) {
	ctx, span := tracer.Start(ctx, "catalog.Snapshot")
	defer span.End()

	span.SetAttributes(attribute.String("property.id", propertyID), attribute.Bool("catalog.fresh", fresh))

	var (
		local    []LocalPackage
		property *Property
		external []ExternalProduct
		extErr   error
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error

		local, err = m.storage.ListLocalPackages(gctx, propertyID)
		if err != nil {
			return fmt.Errorf("list local packages of property %s: %w", propertyID, err)
		}

		return nil
	})

	g.Go(func() error {
		var err error

		property, err = m.storage.GetProperty(gctx, propertyID)
		if err != nil {
			return fmt.Errorf("get property %s: %w", propertyID, err)
		}

		return nil
	})

	g.Go(func() error {
		// Never fails the group: local packages are the authoritative fallback.
		external, extErr = m.externalProducts(gctx, fresh)

		return nil
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)

		return nil, err
	}

	snapshot := &Snapshot{PropertyID: propertyID}

	if extErr != nil {
		m.l.LogWarnf("External catalog unavailable, serving local packages of property %s: %v", propertyID, extErr)

		snapshot.ExternalUnavailable = true
		external = nil
	}

	snapshot.Descriptors = ApplyOverrides(Aggregate(local, external), property.Overrides)

	span.SetAttributes(
		attribute.Int("catalog.descriptors", len(snapshot.Descriptors)),
		attribute.Bool("catalog.external_unavailable", snapshot.ExternalUnavailable),
	)

	return snapshot, nil
}

func (m *Manager) externalProducts(ctx context.Context, fresh bool) ([]ExternalProduct, error) {
	if m.products == nil {
		return nil, nil
	}

	if !fresh {
		if products, ok := m.fromCache(); ok {
			m.observer.ObserveCatalogFetch(externalCatalogKey, fetchCacheHit)

			return products, nil
		}
	}

	// The fetch is shared by every waiting caller, so it must not die with the first caller's request.
	ch := m.group.DoChan(externalCatalogKey, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()

		products, err := m.products.ListProducts(fetchCtx)
		if err != nil {
			return nil, fmt.Errorf("list external products: %w", err)
		}

		m.mu.Lock()
		m.cached = products
		m.cachedAt = m.now()
		m.mu.Unlock()

		return products, nil
	})

	var res singleflight.Result

	select {
	case res = <-ch:
	case <-ctx.Done():
		res = singleflight.Result{Err: ctx.Err()}
	}

	if res.Err != nil {
		m.observer.ObserveCatalogFetch(externalCatalogKey, fetchFailed)

		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, res.Err)
	}

	m.observer.ObserveCatalogFetch(externalCatalogKey, fetchOK)

	products, _ := res.Val.([]ExternalProduct)

	return products, nil
}

func (m *Manager) fromCache() ([]ExternalProduct, bool) {
	if m.cacheTTL <= 0 {
		return nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cachedAt.IsZero() || m.now().Sub(m.cachedAt) > m.cacheTTL {
		return nil, false
	}

	return m.cached, true
}
