package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"ventas/backend/internal/cache"
	"ventas/backend/internal/domain"
	"ventas/backend/internal/logging"
	"ventas/backend/internal/store"
)

// ErrLoad wraps any failure fetching reference data.
var ErrLoad = errors.New("reference data unavailable")

const snapshotCacheKey = "ventas:catalog:v1"

type Source interface {
	store.CatalogReader
	store.BatchFinder
}

type Options struct {
	Cache     cache.CatalogCache
	CacheTTL  time.Duration
	Overrides Defaults
	Logger    *logrus.Logger
}

type Loader struct {
	src       Source
	cache     cache.CatalogCache
	cacheTTL  time.Duration
	overrides Defaults
	logger    *logrus.Logger
}

func NewLoader(src Source, opts Options) *Loader {
	if opts.Cache == nil {
		opts.Cache = cache.NoopCatalogCache{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Loader{
		src:       src,
		cache:     opts.Cache,
		cacheTTL:  opts.CacheTTL,
		overrides: opts.Overrides,
		logger:    opts.Logger,
	}
}

// Load fetches the five collections concurrently and builds the catalog for
// the identity. Any failed fetch fails the whole load.
func (l *Loader) Load(ctx context.Context, identityEmail string) (*Catalog, error) {
	snapshot, err := l.snapshot(ctx)
	if err != nil {
		logging.LogError(l.logger, "catalog", "Load", "fetch reference data", identityEmail, err)
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	return Build(*snapshot, identityEmail, l.overrides), nil
}

// OpenBatchID returns the user's open cash-drawer batch, or 0 when there is none.
func (l *Loader) OpenBatchID(ctx context.Context, userID int64) (int64, error) {
	if userID == 0 {
		return 0, nil
	}
	batch, err := l.src.FindOpenBatch(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return batch.ID, nil
}

func (l *Loader) snapshot(ctx context.Context) (*domain.CatalogSnapshot, error) {
	if cached, ok, err := l.cache.Get(ctx, snapshotCacheKey); err != nil {
		l.logger.WithError(err).Warn("catalog cache read failed; loading from store")
	} else if ok {
		return cached, nil
	}

	var snap domain.CatalogSnapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.Customers, err = l.src.ListCustomers(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.Users, err = l.src.ListUsers(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.DocumentTypes, err = l.src.ListDocumentTypes(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.Accounts, err = l.src.ListTreasuryAccounts(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.Articles, err = l.src.ListArticles(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := l.cache.Set(ctx, snapshotCacheKey, &snap, l.cacheTTL); err != nil {
		l.logger.WithError(err).Warn("catalog cache write failed")
	}
	return &snap, nil
}
